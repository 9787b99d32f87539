// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/PowerFOSS/services/power/registry"
)

var (
	// ErrMissingParameter is matched by *MissingParameterError.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrUnknownParameter is matched by *UnknownParameterError.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrInvalidParameter is matched by *InvalidParameterError.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// UnknownTestError reports a test id that is not in the catalogue. It
// matches registry.ErrUnknownTest.
type UnknownTestError struct {
	TestID string
}

func (e *UnknownTestError) Error() string {
	return fmt.Sprintf("unknown test %q", e.TestID)
}

func (e *UnknownTestError) Unwrap() error { return registry.ErrUnknownTest }

// MissingParameterError names the first absent required parameter in
// declared order.
type MissingParameterError struct {
	TestID string
	Param  string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s: missing required parameter %q", e.TestID, e.Param)
}

func (e *MissingParameterError) Unwrap() error { return ErrMissingParameter }

// UnknownParameterError reports a parameter the test does not declare.
// Param is the first in sorted order; All lists every one.
type UnknownParameterError struct {
	TestID string
	Param  string
	All    []string
}

func (e *UnknownParameterError) Error() string {
	if len(e.All) > 1 {
		return fmt.Sprintf("%s: unknown parameters %q", e.TestID, e.All)
	}
	return fmt.Sprintf("%s: unknown parameter %q", e.TestID, e.Param)
}

func (e *UnknownParameterError) Unwrap() error { return ErrUnknownParameter }

// InvalidParameterError reports a value of the wrong type or outside its
// enumeration.
type InvalidParameterError struct {
	TestID string
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("%s: invalid parameter %q: %s", e.TestID, e.Param, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }
