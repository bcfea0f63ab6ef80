// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Intel Corporation

// Package utils contains utility functions
package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned when a JSON document is not an object
var ErrNotObject = errors.New("JSON document is not an object")

// DecodeObject reads one JSON object keeping numbers as json.Number, so that
// numeric fields reach the validator with their original text. An empty
// document decodes to a nil map.
func DecodeObject(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("malformed JSON: trailing data after object")
	}
	switch obj := v.(type) {
	case map[string]any:
		return obj, nil
	case nil:
		return nil, nil
	default:
		return nil, ErrNotObject
	}
}
