// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command power is the command-line client for powerd.
//
// Usage:
//
//	power tests
//	power describe two_sample_t_test
//	power ask "Two groups, effect size 0.5, 80% power. How many per group?"
//	power calc two_sample_t_test --param delta=0.5 --param sd=1 --param power=0.8
//	power health
//
// The server defaults to $POWER_SERVER_URL, then http://localhost:8080.
package main

import (
	"io"
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command tree and returns the process exit code.
func execute(args []string, out, errOut io.Writer) int {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		newRenderer(errOut, false).failure(err)
		return 1
	}
	return 0
}
