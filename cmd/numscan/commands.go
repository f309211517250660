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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/numscan/cmd/numscan/config"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logJSON    bool
	outputJSON bool

	scanFlags scanOptions

	resumeFresh bool

	exportFormat  string
	exportSession string
	exportChain   string
	exportKind    string
	exportLimit   int
	exportDecrypt bool
	exportOutput  string

	learnerResetConfirm bool

	rootCmd = &cobra.Command{
		Use:   "numscan",
		Short: "Score and scan numeric keyspaces with a learning hybrid scorer",
		Long: `numscan walks a keyspace in parallel batches, scores every candidate
with a mathematical, numerological and learned score, keeps the best
candidates and checkpoints progress so scans survive restarts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load(configPath)
		},
	}

	// --- Scanning ---
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Start a new scan session and run it to completion",
		Args:  cobra.NoArgs,
		RunE:  runScan, // Defined in cmd_scan.go
	}
	resumeCmd = &cobra.Command{
		Use:   "resume [session_id]",
		Short: "Resume a session from its checkpoint (latest when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runResume, // Defined in cmd_scan.go
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run a scan and expose /metrics and /healthz while it runs",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Learner ---
	learnerCmd = &cobra.Command{
		Use:   "learner",
		Short: "Inspect the learning state",
	}
	learnerShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print level, experience, weights and capabilities",
		Args:  cobra.NoArgs,
		RunE:  runLearnerShow, // Defined in cmd_learner.go
	}
	learnerResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "DANGER: Reset the learning state to level 1",
		Args:  cobra.NoArgs,
		RunE:  runLearnerReset, // Defined in cmd_learner.go
	}

	// --- Vault ---
	vaultCmd = &cobra.Command{
		Use:   "vault",
		Short: "Inspect and export recorded findings",
	}
	vaultSummaryCmd = &cobra.Command{
		Use:   "summary",
		Short: "Count findings by kind and chain",
		Args:  cobra.NoArgs,
		RunE:  runVaultSummary, // Defined in cmd_vault.go
	}
	vaultExportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export findings as JSON lines or CSV",
		Args:  cobra.NoArgs,
		RunE:  runVaultExport, // Defined in cmd_vault.go
	}
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessions, // Defined in cmd_vault.go
	}

	// --- Checkpoints ---
	checkpointCmd = &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect saved checkpoints",
	}
	checkpointListCmd = &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE:  runCheckpointList, // Defined in cmd_checkpoint.go
	}
	checkpointShowCmd = &cobra.Command{
		Use:   "show [session_id]",
		Short: "Print one checkpoint as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheckpointShow, // Defined in cmd_checkpoint.go
	}
	checkpointDeleteCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheckpointDelete, // Defined in cmd_checkpoint.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.numscan/numscan.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write JSON logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print command results as JSON")

	for _, c := range []*cobra.Command{scanCmd, serveCmd} {
		registerScanFlags(c, &scanFlags)
	}
	resumeCmd.Flags().BoolVar(&resumeFresh, "fresh-on-corrupt", true, "Start the session over when its checkpoint is corrupt")
	resumeCmd.Flags().StringVar(&scanFlags.targets, "targets", "", "Target list file (one decimal or 0x value per line)")
	serveCmd.Flags().StringVar(&scanFlags.addr, "addr", "", "Listen address for /metrics and /healthz (default from config)")

	vaultExportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json, jsonl or csv")
	vaultExportCmd.Flags().StringVar(&exportSession, "session", "", "Only findings from this session")
	vaultExportCmd.Flags().StringVar(&exportChain, "chain", "", "Only findings for this chain")
	vaultExportCmd.Flags().StringVar(&exportKind, "kind", "", "Only findings of this kind (hit, high_score)")
	vaultExportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum number of findings (0 = all)")
	vaultExportCmd.Flags().BoolVar(&exportDecrypt, "decrypt", false, "Unseal candidate ids (needs "+config.PassphraseEnv+")")
	vaultExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")

	learnerResetCmd.Flags().BoolVar(&learnerResetConfirm, "yes", false, "Confirm the reset")

	rootCmd.AddCommand(scanCmd, resumeCmd, serveCmd, learnerCmd, vaultCmd, sessionsCmd, checkpointCmd)
	learnerCmd.AddCommand(learnerShowCmd, learnerResetCmd)
	vaultCmd.AddCommand(vaultSummaryCmd, vaultExportCmd)
	checkpointCmd.AddCommand(checkpointListCmd, checkpointShowCmd, checkpointDeleteCmd)
}
