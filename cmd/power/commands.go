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
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/PowerFOSS/services/power"
)

const (
	envServerURL     = "POWER_SERVER_URL"
	defaultServerURL = "http://localhost:8080"
)

// rootOptions holds the persistent flag values.
type rootOptions struct {
	server  string
	json    bool
	timeout time.Duration
}

func (o *rootOptions) client() *Client {
	return NewClient(o.server, o.timeout)
}

func defaultServer() string {
	if v := strings.TrimSpace(os.Getenv(envServerURL)); v != "" {
		return v
	}
	return defaultServerURL
}

// newRootCmd builds the command tree writing to out and errOut.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "power",
		Short:         "Sample size calculations from plain-English study descriptions",
		Long:          "power talks to a powerd server to list statistical tests, run sample size\ncalculations, and answer natural-language power-analysis questions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer(), "powerd base URL (env "+envServerURL+")")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Print raw JSON responses")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "Request timeout")

	root.AddCommand(
		newTestsCmd(opts),
		newDescribeCmd(opts),
		newAskCmd(opts),
		newCalcCmd(opts),
		newHealthCmd(opts),
	)

	return root
}

func newTestsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tests",
		Short: "List the supported statistical tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Tests(cmd.Context())
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout(), opts.json).tests(resp)
		},
	}
}

func newDescribeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <test-id>",
		Short: "Show a test's parameters and use cases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.client().Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout(), opts.json).describe(d)
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		simple      bool
		noEducation bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a power-analysis question in plain English",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := power.QueryRequest{Query: strings.Join(args, " ")}
			if simple {
				req.ResponseFormat = "simple"
			}
			if noEducation {
				include := false
				req.IncludeEducationalContent = &include
			}
			reply, err := opts.client().Ask(cmd.Context(), req)
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout(), opts.json).answer(reply)
		},
	}
	cmd.Flags().BoolVar(&simple, "simple", false, "Return only the result and parameters")
	cmd.Flags().BoolVar(&noEducation, "no-education", false, "Skip the explanation")
	return cmd
}

func newCalcCmd(opts *rootOptions) *cobra.Command {
	var raw []string
	cmd := &cobra.Command{
		Use:   "calc <test-id> --param name=value...",
		Short: "Run one calculation from explicit parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(raw)
			if err != nil {
				return err
			}
			resp, err := opts.client().Calculate(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout(), opts.json).calculation(args[0], resp)
		},
	}
	cmd.Flags().StringArrayVarP(&raw, "param", "p", nil, "Parameter as name=value (repeatable)")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the server and whether AI is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout(), opts.json).health(resp)
		},
	}
}

// parseParams turns name=value pairs into a request body. Numbers become
// float64 and everything else stays a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q is not name=value", pair)
		}
		if _, dup := params[name]; dup {
			return nil, fmt.Errorf("parameter %q given twice", name)
		}
		value = strings.TrimSpace(value)
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[name] = f
		} else {
			params[name] = value
		}
	}
	return params, nil
}
