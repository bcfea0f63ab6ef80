// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

package validator

import (
	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
)

// Marker classifies a rejection for the caller
type Marker string

// Error markers exposed to clients
const (
	MarkerNone                      Marker = ""
	MarkerValidationError           Marker = "VALIDATION_ERROR"
	MarkerIncorrectMethodInvocation Marker = "INCORRECT_METHOD_INVOCATION"
)

// State is a step of the validation state machine
type State int

// Validation states, in the order a request walks through them
const (
	StateStart State = iota
	StatePathValidated
	StateBodyValidated
	StateAccept
	StateReject
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StatePathValidated:
		return "PATH_VALIDATED"
	case StateBodyValidated:
		return "BODY_VALIDATED"
	case StateAccept:
		return "ACCEPT"
	case StateReject:
		return "REJECT"
	}
	return "UNKNOWN"
}

// Request is one REST call, decomposed by the router
type Request struct {
	Method schema.Method
	// Params holds the URI path parameters in pattern order
	Params []string
	// Body is the decoded JSON object, numbers kept as json.Number, or nil
	Body map[string]any
}

// Result is the outcome of validating a Request
type Result struct {
	Valid        bool
	InvalidField string
	Marker       Marker
	// State is StateAccept or StateReject
	State State
	// Stage is the last state reached before the final one
	Stage State
	// NormalizedBody is a copy of the request body with list keys stripped
	// and defaults injected. The request body itself is never modified.
	NormalizedBody map[string]any
}

// Outcome is a short label of the result, used for metrics and logs
func (r Result) Outcome() string {
	if r.Valid {
		return "accept"
	}
	if r.Marker == MarkerIncorrectMethodInvocation {
		return "method"
	}
	return "reject"
}
