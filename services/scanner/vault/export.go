// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vault

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "json", "jsonl" or "csv".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json", "jsonl":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ExportOptions controls Export.
type ExportOptions struct {
	Format  Format
	Filter  Filter
	Decrypt bool
}

var csvHeader = []string{
	"id", "session_id", "kind", "candidate_id", "chain", "score",
	"math_score", "numerology_score", "learned_score", "token",
	"reduced_digit", "is_master", "found_at",
}

// Export writes matching findings to w as JSON lines or CSV and returns
// the number written. With Decrypt, sealed ids are opened; this fails
// with ErrSealed when the vault has no passphrase.
func (s *Store) Export(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if opts.Decrypt && s.sealer == nil {
		return 0, fmt.Errorf("%w: decrypt requested but no passphrase configured", ErrSealed)
	}
	findings, err := s.List(ctx, opts.Filter)
	if err != nil {
		return 0, err
	}
	if opts.Decrypt {
		for i := range findings {
			plain, err := s.sealer.Unseal(findings[i].CandidateID)
			if err != nil {
				return 0, fmt.Errorf("finding %s: %w", findings[i].ID, err)
			}
			findings[i].CandidateID = plain
		}
	}

	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		for _, f := range findings {
			if err := enc.Encode(f); err != nil {
				return 0, fmt.Errorf("encode finding: %w", err)
			}
		}
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return 0, err
		}
		for _, f := range findings {
			if err := cw.Write(csvRow(f)); err != nil {
				return 0, err
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return 0, fmt.Errorf("write csv: %w", err)
		}
	default:
		return 0, fmt.Errorf("unknown export format %q", opts.Format)
	}
	return len(findings), nil
}

func csvRow(f Finding) []string {
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	return []string{
		f.ID,
		f.SessionID,
		string(f.Kind),
		f.CandidateID,
		f.Chain,
		ff(f.Score),
		ff(f.Breakdown.MathScore),
		ff(f.Breakdown.NumerologyScore),
		ff(f.Breakdown.LearnedScore),
		f.Breakdown.Token,
		strconv.Itoa(f.Breakdown.ReducedDigit),
		strconv.FormatBool(f.Breakdown.IsMaster),
		f.FoundAt.Format(time.RFC3339),
	}
}
