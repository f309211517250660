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
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/numscan/services/scanner/vault"
)

func runVaultSummary(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), needVault)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	sum, err := a.vault.Summary(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(w, sum)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "findings\t%d\n", sum.Total)
	fmt.Fprintf(tw, "hits\t%d\n", sum.Hits)
	fmt.Fprintf(tw, "sessions\t%d\n", sum.Sessions)
	fmt.Fprintf(tw, "sealed\t%t\n", sum.Sealed)
	for chain, n := range sum.ByChain {
		fmt.Fprintf(tw, "  %s\t%d\n", chain, n)
	}
	return tw.Flush()
}

func runVaultExport(cmd *cobra.Command, args []string) error {
	format, err := vault.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), needVault)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	var w io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.OpenFile(exportOutput, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := a.vault.Export(cmd.Context(), w, vault.ExportOptions{
		Format: format,
		Filter: vault.Filter{
			SessionID: exportSession,
			Chain:     exportChain,
			Kind:      vault.Kind(exportKind),
			Limit:     exportLimit,
		},
		Decrypt: exportDecrypt,
	})
	if err != nil {
		return err
	}
	if exportOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d findings to %s\n", n, exportOutput)
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), needVault)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	recs, err := a.vault.Sessions(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(w, recs)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTATE\tSTARTED\tTESTED\tHITS\tBEST\tRANGE")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%.4f\t%s\n",
			r.ID, r.Mode, r.State, r.StartedAt.Local().Format(time.DateTime),
			r.KeysTested+r.SeedsTested, r.Hits, r.HighScore, r.Range)
	}
	return tw.Flush()
}
