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
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/PowerFOSS/services/power"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
)

// Palette.
var (
	colorTeal    = lipgloss.Color("#20B9B4")
	colorBright  = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#2C4A54")
)

// renderer writes command output either as styled text or as raw JSON.
type renderer struct {
	out  io.Writer
	json bool

	title   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
	errorS  lipgloss.Style
	box     lipgloss.Style
}

func newRenderer(out io.Writer, asJSON bool) *renderer {
	r := lipgloss.NewRenderer(out)
	box := r.NewStyle()
	if isTerminal(out) {
		box = box.Border(lipgloss.RoundedBorder()).BorderForeground(colorTeal).Padding(0, 1)
	}
	return &renderer{
		out:     out,
		json:    asJSON,
		title:   r.NewStyle().Bold(true).Foreground(colorBright),
		label:   r.NewStyle().Foreground(colorTeal),
		value:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
		warning: r.NewStyle().Foreground(colorWarning),
		errorS:  r.NewStyle().Foreground(colorError),
		box:     box,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (r *renderer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *renderer) raw(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *renderer) field(name string, value any) {
	r.printf("%s %s\n", r.label.Render(name+":"), fmt.Sprint(value))
}

func (r *renderer) list(name string, items []string) {
	if len(items) == 0 {
		return
	}
	r.printf("\n%s\n", r.label.Render(name))
	for _, item := range items {
		r.printf("  • %s\n", item)
	}
}

// =============================================================================
// Per-command output
// =============================================================================

func (r *renderer) tests(resp power.TestsResponse) error {
	if r.json {
		return r.raw(resp)
	}
	r.printf("%s\n\n", r.title.Render(fmt.Sprintf("%d statistical tests", resp.TotalTests)))
	ids := slices.Clone(resp.AvailableTests)
	slices.Sort(ids)
	width := 0
	for _, id := range ids {
		width = max(width, len(id))
	}
	for _, id := range ids {
		r.printf("  %s  %s\n", r.value.Render(fmt.Sprintf("%-*s", width, id)), resp.TestDetails[id].Description)
	}
	if !resp.AIEnabled {
		r.printf("\n%s\n", r.warning.Render("Natural language queries are disabled on this server."))
	}
	return nil
}

func (r *renderer) describe(d registry.TestDescriptor) error {
	if r.json {
		return r.raw(d)
	}
	r.printf("%s\n%s\n\n", r.title.Render(d.ID), d.Description)
	r.field("Result", d.Result)
	r.field("Example", d.ExampleQuery)
	r.printf("\n%s\n", r.label.Render("Parameters"))
	for _, p := range d.Params {
		line := fmt.Sprintf("  %s (%s) %s", r.value.Render(p.Name), p.Type, p.Description)
		if p.Default != nil {
			line += r.muted.Render(fmt.Sprintf(" [default %v]", p.Default))
		}
		if len(p.Enum) > 0 {
			line += r.muted.Render(" one of " + strings.Join(p.Enum, ", "))
		}
		r.printf("%s\n", line)
	}
	r.list("Use cases", d.UseCases)
	return nil
}

func (r *renderer) calculation(id string, resp power.CalculationResponse) error {
	if r.json {
		return r.raw(resp)
	}
	r.printf("%s %s\n", r.label.Render(id+":"), r.value.Render(resp.Result.String()))
	return nil
}

func (r *renderer) health(resp power.HealthResponse) error {
	if r.json {
		return r.raw(resp)
	}
	status := r.value.Render(resp.Status)
	if resp.Status != "healthy" {
		status = r.warning.Render(resp.Status)
	}
	r.field("Status", status)
	r.field("AI enabled", resp.AIEnabled)
	r.field("Tests", resp.AvailableTests)
	r.printf("%s\n", r.muted.Render(resp.Message))
	return nil
}

func (r *renderer) answer(reply QueryReply) error {
	if r.json {
		if reply.Disabled != nil {
			return r.raw(reply.Disabled)
		}
		return r.raw(reply.Answer)
	}
	if reply.Disabled != nil {
		r.printf("%s\n", r.warning.Render(reply.Disabled.Error))
		return nil
	}

	env := reply.Answer.ResponseEnvelope
	summary := fmt.Sprintf("%s\n%s %s",
		r.title.Render(env.TestID),
		r.label.Render("Sample size:"),
		r.value.Render(env.Result.String()))
	r.printf("%s\n", r.box.Render(summary))

	names := make([]string, 0, len(env.Params))
	for name := range env.Params {
		names = append(names, name)
	}
	slices.Sort(names)
	params := make([]string, len(names))
	for i, name := range names {
		params[i] = fmt.Sprintf("%s = %v", name, env.Params[name])
	}
	r.list("Parameters", params)

	if env.Confidence > 0 {
		r.printf("\n")
		r.field("Confidence", fmt.Sprintf("%.0f%%", env.Confidence*100))
	}
	if env.ExtractionNote != "" {
		r.printf("%s\n", r.muted.Render(env.ExtractionNote))
	}

	if ex := env.Explanation; ex != nil {
		r.printf("\n%s\n", ex.Interpretation)
		r.list("Assumptions", ex.Assumptions)
		r.list("Recommendations", ex.Recommendations)
		if ex.EducationalContext != "" {
			r.printf("\n%s\n%s\n", r.label.Render("Background"), ex.EducationalContext)
		}
	}
	return nil
}

func (r *renderer) failure(err error) {
	r.printf("%s %s\n", r.errorS.Render("Error:"), err.Error())
}
