// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for identifiers
// that end up in file names, storage keys and metric tags.
//
// Session ids name checkpoint files and tag InfluxDB points; chain names
// are stored with findings and used as export filters. Validating them at
// the boundary prevents path traversal and line-protocol injection.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid identifier")

// sessionIDPattern matches valid session ids.
// Allows: letters, digits, underscores, hyphens (UUIDs fit)
// Max length: 64 characters, first character alphanumeric
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// chainPattern matches chain names such as "btc" or "eth".
var chainPattern = regexp.MustCompile(`^[a-z][a-z0-9]{1,15}$`)

// ValidateSessionID validates a session id before it is used as a file name
// or tag value.
//
// Example:
//
//	if err := validation.ValidateSessionID(id); err != nil {
//	    return nil, fmt.Errorf("load checkpoint: %w", err)
//	}
//	// Safe to join onto the checkpoint directory
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: session id cannot be empty", ErrInvalid)
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: session id %q (must be 1-64 letters, digits, '_' or '-', starting alphanumeric)", ErrInvalid, id)
	}
	return nil
}

// ValidateChain validates a lowercase chain name.
func ValidateChain(chain string) error {
	if !chainPattern.MatchString(chain) {
		return fmt.Errorf("%w: chain %q (must be 2-16 lowercase letters or digits)", ErrInvalid, chain)
	}
	return nil
}

// ValidateChains validates multiple chain names.
// Returns an error listing all invalid chains if any fail validation.
func ValidateChains(chains []string) error {
	var invalid []string
	for _, c := range chains {
		if err := ValidateChain(c); err != nil {
			invalid = append(invalid, c)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: chains %q", ErrInvalid, invalid)
	}
	return nil
}

// SanitizeChain normalizes and validates a chain name.
// Returns the lowercase chain if valid, or an error if invalid.
func SanitizeChain(chain string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(chain))
	if err := ValidateChain(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
