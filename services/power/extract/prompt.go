// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/AleutianAI/PowerFOSS/services/power/registry"
)

// PromptBuilder renders the extraction system prompt from the catalogue.
//
// Thread Safety: PromptBuilder is safe for concurrent use.
type PromptBuilder struct {
	tmpl *template.Template
}

// PromptData is the template input.
type PromptData struct {
	Tests []registry.TestDescriptor
}

const systemPromptTemplate = `You are an expert statistical consultant specializing in power analysis and sample size calculation.

Identify the statistical test the user needs and extract its parameters from the query.

## Available Tests
{{range .Tests}}
### {{.ID}}
{{.Description}}
Parameters:
{{range .Params}}  - {{.Name}} ({{.Type}}, {{if .Required}}required{{else}}optional, default: {{.Default}}{{end}}{{if .Enum}}, one of: {{join .Enum ", "}}{{end}}): {{.Description}}
{{end}}{{end}}
## Rules
- test_id MUST be one of the test ids listed above, spelled exactly.
- Use exactly the parameter names listed for the chosen test. Do not add others.
- Convert percentages to proportions: "80% power" is 0.8, "30% events" is 0.3.
- Omit any parameter the query does not state. Never invent or estimate values.
- Omit optional parameters unless the query states them.

## Output Format
Respond with ONLY a JSON object. No markdown, no prose outside the JSON:
{"test_id": "<test id>", "params": {"<name>": <value>}, "confidence": <0.0-1.0>, "explanation": "<one sentence on what the user wants>"}`

// NewPromptBuilder parses the system prompt template.
func NewPromptBuilder() (*PromptBuilder, error) {
	funcMap := template.FuncMap{
		"join": strings.Join,
	}

	tmpl, err := template.New("extract").Funcs(funcMap).Parse(systemPromptTemplate)
	if err != nil {
		slog.Error("extract prompt template parsing failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("parsing extraction prompt: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// BuildSystemPrompt renders the prompt listing every test and its schema.
func (p *PromptBuilder) BuildSystemPrompt(tests []registry.TestDescriptor) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, PromptData{Tests: tests}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
