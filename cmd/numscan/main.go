// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command numscan scans numeric keyspaces, ranks candidates by a hybrid
// mathematical and numerological score and records findings in a local
// vault.
//
// Usage:
//
//	numscan scan --start 0x1 --end 0xffffff --threads 8
//	numscan scan --puzzle 66 --targets targets.txt
//	numscan resume <session-id>
//	numscan serve --puzzle 66
//	numscan learner show
//	numscan vault export --format csv
//	numscan checkpoint list
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
