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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func runCheckpointList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), needCheckpoints)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	cps, err := a.checkpoints.List(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(w, cps)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSAVED\tPOSITION\tTESTED\tHITS\tBEST\tTOP-N")
	for _, cp := range cps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.4f\t%d\n",
			cp.SessionID, cp.SavedAt.Local().Format(time.DateTime), cp.Position,
			cp.Stats.KeysTested+cp.Stats.SeedsTested, cp.Stats.Hits, cp.Stats.HighestScore, len(cp.TopN))
	}
	return tw.Flush()
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), needCheckpoints)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	cp, err := a.checkpoints.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), cp)
}

func runCheckpointDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), needCheckpoints)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	if err := a.checkpoints.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted checkpoint %s\n", args[0])
	return nil
}
