// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coordinator runs the query pipeline.
//
// # State Machine
//
//	Idle -> Extracting -> Validating -> Dispatching -> Composing -> Done
//	Idle -> AIDisabled
//	Extracting | Validating | Dispatching -> Failed
//
// Composing never fails. Every run visits each state at most once.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/PowerFOSS/services/power/compose"
	"github.com/AleutianAI/PowerFOSS/services/power/dispatch"
	"github.com/AleutianAI/PowerFOSS/services/power/extract"
	"github.com/AleutianAI/PowerFOSS/services/power/providers"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
	"github.com/AleutianAI/PowerFOSS/services/power/validate"
)

var tracer = otel.Tracer("powerfoss.coordinator")

// DisabledMessage is returned on the AIDisabled branch.
const DisabledMessage = "AI features are disabled. Please provide an OpenAI API key."

// ErrNotFound is returned by DescribeTest for an unknown id.
var ErrNotFound = errors.New("not found")

// =============================================================================
// States
// =============================================================================

// State is one step of the pipeline.
type State string

const (
	StateIdle        State = "Idle"
	StateAIDisabled  State = "AIDisabled"
	StateExtracting  State = "Extracting"
	StateValidating  State = "Validating"
	StateDispatching State = "Dispatching"
	StateComposing   State = "Composing"
	StateDone        State = "Done"
	StateFailed      State = "Failed"
)

// Trace is the ordered list of states one run visited.
type Trace []State

func (t Trace) last() State {
	if len(t) == 0 {
		return StateIdle
	}
	return t[len(t)-1]
}

// PipelineError is the Failed(reason) terminal state.
//
// State is the step that failed. Err is the step's own error, so
// errors.Is and errors.As reach the extract, validate and dispatch types.
type PipelineError struct {
	State State
	Err   error
	Trace Trace
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.State, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// DisabledEnvelope is the minimal response when no model is configured.
type DisabledEnvelope struct {
	Timestamp strfmt.DateTime `json:"timestamp"`
	Query     string          `json:"user_query"`
	Error     string          `json:"error"`
	AIEnabled bool            `json:"ai_enabled"`
}

// Outcome is the result of a successful run. Exactly one of Envelope and
// Disabled is set, matching State.
type Outcome struct {
	State    State                     `json:"state"`
	Envelope *compose.ResponseEnvelope `json:"envelope,omitempty"`
	Disabled *DisabledEnvelope         `json:"disabled,omitempty"`
	Trace    Trace                     `json:"trace"`
}

// =============================================================================
// Query options
// =============================================================================

// ResponseFormat selects how much of the envelope a caller receives.
type ResponseFormat string

const (
	FormatDetailed ResponseFormat = "detailed"
	FormatSimple   ResponseFormat = "simple"
)

// QueryOptions shape the envelope returned by ProcessWithOptions.
type QueryOptions struct {
	// Format "simple" omits the explanation and the extraction details.
	Format ResponseFormat

	// IncludeEducational false omits the explanation and skips the
	// explanation model call.
	IncludeEducational bool
}

// DefaultQueryOptions returns detailed output with educational content.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{Format: FormatDetailed, IncludeEducational: true}
}

func (o QueryOptions) wantsExplanation() bool {
	return o.Format != FormatSimple && o.IncludeEducational
}

// =============================================================================
// Coordinator
// =============================================================================

// Options configures a Coordinator.
type Options struct {
	// Registry is the test catalogue. Nil uses registry.Default().
	Registry *registry.Registry

	// Chat is the model client. Nil selects the AIDisabled branch for
	// every query; catalogue operations keep working.
	Chat providers.ChatClient

	// Dispatcher runs calculations. Nil uses dispatch.New with defaults.
	Dispatcher *dispatch.Dispatcher

	Extract extract.Config
	Compose compose.Config

	// Logger. Nil uses slog.Default().
	Logger *slog.Logger
}

// Coordinator owns the pipeline components.
//
// Thread Safety: Safe for concurrent use. Runs share no mutable state.
type Coordinator struct {
	registry   *registry.Registry
	extractor  *extract.Extractor
	validator  *validate.Validator
	dispatcher *dispatch.Dispatcher
	composer   *compose.Composer
	aiEnabled  bool
	logger     *slog.Logger
	now        func() time.Time
}

// New wires a Coordinator.
//
// Description:
//
//	Fails if the catalogue and the dispatcher's registration table do not
//	name the same tests, so a catalogue entry can never reach dispatch
//	without a calculation behind it.
//
// Inputs:
//
//	opts - Components and tuning. All fields are optional.
//
// Outputs:
//
//	*Coordinator - Ready for concurrent use.
//	error - Non-nil if the catalogue fails to load or disagrees with the table.
func New(opts Options) (*Coordinator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		var err error
		reg, err = registry.Default()
		if err != nil {
			return nil, fmt.Errorf("loading test catalogue: %w", err)
		}
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.New(dispatch.Options{Logger: logger})
	}
	if !slices.Equal(sortedIDs(reg), dispatcher.Registered()) {
		return nil, fmt.Errorf("catalogue %v and calculation table %v disagree", sortedIDs(reg), dispatcher.Registered())
	}

	extractor, err := extract.NewExtractor(opts.Chat, reg, opts.Extract, logger)
	if err != nil {
		return nil, fmt.Errorf("creating extractor: %w", err)
	}

	validator, err := validate.New(reg)
	if err != nil {
		return nil, fmt.Errorf("creating validator: %w", err)
	}

	return &Coordinator{
		registry:   reg,
		extractor:  extractor,
		validator:  validator,
		dispatcher: dispatcher,
		composer:   compose.NewComposer(opts.Chat, opts.Compose, logger),
		aiEnabled:  opts.Chat != nil,
		logger:     logger.With(slog.String("component", "coordinator")),
		now:        time.Now,
	}, nil
}

func sortedIDs(reg *registry.Registry) []string {
	ids := reg.IDs()
	slices.Sort(ids)
	return ids
}

// AIEnabled reports whether a model client is configured.
func (c *Coordinator) AIEnabled() bool { return c.aiEnabled }

// ListTests returns every catalogue entry in catalogue order.
func (c *Coordinator) ListTests() []registry.TestDescriptor {
	return c.registry.List()
}

// DescribeTest returns one catalogue entry, or an error matching
// ErrNotFound and registry.ErrUnknownTest.
func (c *Coordinator) DescribeTest(id string) (registry.TestDescriptor, error) {
	d, err := c.registry.Describe(id)
	if err != nil {
		return registry.TestDescriptor{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return d, nil
}

// Calculate validates params strictly and runs the calculation for testID
// without any model involvement.
func (c *Coordinator) Calculate(ctx context.Context, testID string, params map[string]any) (dispatch.CalculationResult, error) {
	req, err := c.validator.ValidateParams(testID, params)
	if err != nil {
		return dispatch.CalculationResult{}, err
	}
	return c.dispatcher.Dispatch(ctx, req)
}

// Process runs the pipeline with DefaultQueryOptions.
func (c *Coordinator) Process(ctx context.Context, query string) (Outcome, error) {
	return c.ProcessWithOptions(ctx, query, DefaultQueryOptions())
}

// ProcessWithOptions runs the pipeline for one query.
//
// Description:
//
//	Without a model client the run ends in AIDisabled with no network
//	activity. Otherwise it extracts, validates, dispatches and composes
//	in order. A failure in the first three returns *PipelineError; once a
//	result exists the run always ends in Done.
//
// Outputs:
//
//	Outcome - Done with an envelope, or AIDisabled with a disabled envelope.
//	error - *PipelineError for Failed runs.
func (c *Coordinator) ProcessWithOptions(ctx context.Context, query string, opts QueryOptions) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "coordinator.Coordinator.Process")
	defer span.End()

	runID := uuid.NewString()
	logger := c.logger.With(slog.String("run_id", runID))
	trace := Trace{StateIdle}
	start := time.Now()

	if !c.aiEnabled {
		trace = append(trace, StateAIDisabled)
		recordRun(StateAIDisabled, time.Since(start))
		span.SetAttributes(attribute.String("pipeline.state", string(StateAIDisabled)))
		logger.Info("query received with AI disabled")
		return Outcome{
			State: StateAIDisabled,
			Disabled: &DisabledEnvelope{
				Timestamp: strfmt.DateTime(c.now().UTC()),
				Query:     query,
				Error:     DisabledMessage,
				AIEnabled: false,
			},
			Trace: trace,
		}, nil
	}

	fail := func(err error) (Outcome, error) {
		failedIn := trace.last()
		trace = append(trace, StateFailed)
		recordRun(failedIn, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(failedIn))
		logger.Warn("pipeline failed",
			slog.String("state", string(failedIn)),
			slog.String("error", err.Error()),
		)
		return Outcome{}, &PipelineError{State: failedIn, Err: err, Trace: trace}
	}

	trace = append(trace, StateExtracting)
	extraction, err := c.extractor.Extract(ctx, query)
	if err != nil {
		return fail(err)
	}

	trace = append(trace, StateValidating)
	req, err := c.validator.Validate(extraction)
	if err != nil {
		return fail(err)
	}

	trace = append(trace, StateDispatching)
	result, err := c.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return fail(err)
	}

	trace = append(trace, StateComposing)
	env := c.composer.Compose(ctx, query, req.TestID, req.Params, result, opts.wantsExplanation())
	env.AIEnabled = true
	env.Confidence = extraction.Confidence
	env.ExtractionNote = extraction.Explanation
	if !opts.wantsExplanation() {
		env.Explanation = nil
		env.ExplanationSource = ""
	}
	if opts.Format == FormatSimple {
		env.ExtractionNote = ""
		env.Confidence = 0
	}

	trace = append(trace, StateDone)
	recordRun(StateDone, time.Since(start))
	span.SetAttributes(
		attribute.String("pipeline.state", string(StateDone)),
		attribute.String("test_id", req.TestID),
	)
	logger.Info("query processed",
		slog.String("test_id", req.TestID),
		slog.String("explanation_source", env.ExplanationSource),
		slog.Duration("duration", time.Since(start)),
	)
	return Outcome{State: StateDone, Envelope: &env, Trace: trace}, nil
}
