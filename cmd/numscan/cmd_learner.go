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
	"errors"

	"github.com/spf13/cobra"
)

func runLearnerShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), needLearner)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	printLearner(cmd.OutOrStdout(), a.learner.Snapshot())
	return nil
}

func runLearnerReset(cmd *cobra.Command, args []string) error {
	if !learnerResetConfirm {
		return errors.New("refusing to reset the learning state without --yes")
	}
	a, err := newApp(cmd.Context(), needLearner)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	if err := a.learner.Reset(cmd.Context()); err != nil {
		return err
	}
	printLearner(cmd.OutOrStdout(), a.learner.Snapshot())
	return nil
}
