// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/numscan/services/scanner/events"
	"github.com/AleutianAI/numscan/services/scanner/learner"
	"github.com/AleutianAI/numscan/services/scanner/monitor"
	"github.com/AleutianAI/numscan/services/scanner/session"
	"github.com/AleutianAI/numscan/services/scanner/topn"
	"github.com/AleutianAI/numscan/services/scanner/vault"
)

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether w is an interactive terminal. Anything that is
// not an *os.File counts as a pipe.
func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// liveEventTypes lists the events printed while a session runs. Periodic
// stats lines only go to a terminal.
func liveEventTypes(w io.Writer) []events.Type {
	types := []events.Type{events.TypeFinding, events.TypeCheckpoint, events.TypeLevelUp}
	if isTerminal(w) {
		types = append(types, events.TypeStatsUpdate)
	}
	return types
}

// printEvent renders one live event as a single line.
func printEvent(w io.Writer, e *events.Event, perf monitor.Report) {
	ts := e.Timestamp.Local().Format("15:04:05")
	switch d := e.Data.(type) {
	case events.StatsData:
		rate := d.KeysPerSecond
		if perf.Status == monitor.StatusOK && perf.Sample.Rate > 0 {
			rate = perf.Sample.Rate
		}
		fmt.Fprintf(w, "%s  %6.2f%%  tested=%d  rate=%.0f/s  hits=%d  best=%.4f\n",
			ts, d.Progress*100, d.KeysTested+d.SeedsTested, rate, d.Hits, d.HighestScore)
	case events.FindingData:
		if d.Kind == string(vault.KindHit) {
			fmt.Fprintf(w, "%s  MATCH  %s  chain=%s  score=%.4f  token=%s\n", ts, d.CandidateID, d.Chain, d.Score, d.Token)
		}
	case events.CheckpointData:
		if d.Final {
			fmt.Fprintf(w, "%s  final checkpoint at %s\n", ts, d.Position)
		}
	case events.LevelUpData:
		fmt.Fprintf(w, "%s  level up: %d -> %d (%s)\n", ts, d.From, d.To, d.Name)
	}
}

// printSummary reports a finished session.
func printSummary(w io.Writer, st session.Status, top []topn.Entry, ls learner.State) {
	if outputJSON {
		_ = writeJSON(w, struct {
			Status  session.Status `json:"status"`
			TopN    []topn.Entry   `json:"top_n"`
			Learner learner.State  `json:"learner"`
		}{st, top, ls})
		return
	}

	fmt.Fprintf(w, "\nSession %s stopped (%s)\n", st.ID, st.StopReason)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  range\t%s\n", st.Range)
	fmt.Fprintf(tw, "  position\t%s\n", st.Position)
	fmt.Fprintf(tw, "  tested\t%d\n", st.Stats.Tested())
	fmt.Fprintf(tw, "  hits\t%d\n", st.Stats.Hits)
	fmt.Fprintf(tw, "  highest score\t%.4f\n", st.Stats.HighestScore)
	fmt.Fprintf(tw, "  elapsed\t%s\n", st.Stats.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(tw, "  checkpoints\t%d\n", st.Stats.CheckpointCount)
	if st.Stats.WorkerFaults > 0 {
		fmt.Fprintf(tw, "  worker faults\t%d\n", st.Stats.WorkerFaults)
	}
	if st.Degraded {
		fmt.Fprintf(tw, "  degraded\t%s\n", st.DegradedReason)
	}
	for _, c := range st.Capabilities {
		if !c.Active {
			fmt.Fprintf(tw, "  declined\t%s: %s\n", c.Capability, c.Reason)
		}
	}
	if o := st.Outcome; o != nil {
		fmt.Fprintf(tw, "  xp gained\t%d\n", o.XPGained)
	}
	fmt.Fprintf(tw, "  learner\tlevel %d (%s), %d xp\n", ls.Level, ls.LevelName(), ls.XP)
	_ = tw.Flush()

	if len(top) == 0 {
		return
	}
	limit := min(len(top), 10)
	fmt.Fprintf(w, "\nTop %d of %d:\n", limit, len(top))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tscore\tcandidate\ttoken\tdigit")
	for i, e := range top[:limit] {
		fmt.Fprintf(tw, "  %d\t%.4f\t%s\t%s\t%d\n", i+1, e.Score, e.CandidateID, e.Record.Token, e.Record.ReducedDigit)
	}
	_ = tw.Flush()
}

// printLearner renders the learning state.
func printLearner(w io.Writer, ls learner.State) {
	if outputJSON {
		_ = writeJSON(w, ls)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "level\t%d (%s)\n", ls.Level, ls.LevelName())
	if ls.XPNext != nil {
		fmt.Fprintf(tw, "xp\t%d / %d\n", ls.XP, *ls.XPNext)
	} else {
		fmt.Fprintf(tw, "xp\t%d (max level)\n", ls.XP)
	}
	fmt.Fprintf(tw, "weights\tmath=%.3f numerology=%.3f learned=%.3f\n",
		ls.Weights.Math, ls.Weights.Numerology, ls.Weights.Learned)
	fmt.Fprintf(tw, "sessions\t%d\n", ls.Sessions)
	_ = tw.Flush()

	fmt.Fprintln(w, "\ncapabilities:")
	active := make(map[learner.Capability]bool, len(ls.Capabilities))
	for _, c := range ls.Capabilities {
		active[c] = true
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range learner.AllCapabilities() {
		lvl, _ := learner.RequiredLevel(c)
		mark := "locked"
		if active[c] {
			mark = "active"
		}
		fmt.Fprintf(tw, "  %s\t%s\tlevel %d\n", c, mark, lvl)
	}
	_ = tw.Flush()
}
