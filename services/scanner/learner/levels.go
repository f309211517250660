// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learner

import "fmt"

// Level describes one rung of the progression table.
type Level struct {
	Number int
	Name   string
	MinXP  int64
}

// Levels is the progression table, ascending.
var Levels = [...]Level{
	{Number: 1, Name: "Novice", MinXP: 0},
	{Number: 2, Name: "Student", MinXP: 100},
	{Number: 3, Name: "Apprentice", MinXP: 500},
	{Number: 4, Name: "Expert", MinXP: 2000},
	{Number: 5, Name: "Master", MinXP: 10000},
}

// MaxLevel is the highest level number.
const MaxLevel = 5

// LevelForXP returns the highest level whose threshold xp reaches.
// Negative xp maps to level 1.
func LevelForXP(xp int64) int {
	level := 1
	for _, l := range Levels {
		if xp >= l.MinXP {
			level = l.Number
		}
	}
	return level
}

// LevelName returns the display name for a level number.
func LevelName(level int) string {
	if level < 1 || level > MaxLevel {
		return fmt.Sprintf("Level %d", level)
	}
	return Levels[level-1].Name
}

// NextThreshold returns the xp needed for the level after level, or nil
// at MaxLevel.
func NextThreshold(level int) *int64 {
	if level >= MaxLevel {
		return nil
	}
	if level < 1 {
		level = 1
	}
	v := Levels[level].MinXP
	return &v
}

// Capability is a named feature unlocked by level.
type Capability string

const (
	CapBasicScanning    Capability = "basic_scanning"
	CapCheckpointResume Capability = "checkpoint_resume"
	CapWeightAdaptation Capability = "weight_adaptation"
	CapLearnedScoring   Capability = "learned_scoring"
	CapExtendedRanking  Capability = "extended_ranking"
	CapAutoTuning       Capability = "auto_tuning"
)

// capabilityLevels is the closed capability set with unlock levels.
var capabilityLevels = map[Capability]int{
	CapBasicScanning:    1,
	CapCheckpointResume: 1,
	CapWeightAdaptation: 2,
	CapLearnedScoring:   3,
	CapExtendedRanking:  4,
	CapAutoTuning:       5,
}

// capabilityOrder lists capabilities in unlock order for stable output.
var capabilityOrder = []Capability{
	CapBasicScanning,
	CapCheckpointResume,
	CapWeightAdaptation,
	CapLearnedScoring,
	CapExtendedRanking,
	CapAutoTuning,
}

// AllCapabilities returns the closed capability set in unlock order.
func AllCapabilities() []Capability {
	out := make([]Capability, len(capabilityOrder))
	copy(out, capabilityOrder)
	return out
}

// RequiredLevel returns the unlock level and whether the capability exists.
func RequiredLevel(c Capability) (int, bool) {
	l, ok := capabilityLevels[c]
	return l, ok
}

// CapabilitiesAt returns every capability active at level, in unlock order.
func CapabilitiesAt(level int) []Capability {
	var out []Capability
	for _, c := range capabilityOrder {
		if capabilityLevels[c] <= level {
			out = append(out, c)
		}
	}
	return out
}

// unlockedBetween returns capabilities unlocked in (from, to].
func unlockedBetween(from, to int) []Capability {
	var out []Capability
	for _, c := range capabilityOrder {
		if l := capabilityLevels[c]; l > from && l <= to {
			out = append(out, c)
		}
	}
	return out
}

// CapabilityStatus is the answer to a Gate query.
type CapabilityStatus struct {
	Capability    Capability `json:"capability"`
	Active        bool       `json:"active"`
	RequiredLevel int        `json:"required_level,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}
