// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ConstraintKind identifies a cross field rule
type ConstraintKind string

// Supported cross field rules
const (
	// MutuallyExclusive allows at most one of Fields
	MutuallyExclusive ConstraintKind = "mutually_exclusive"
	// ExactlyOne requires exactly one of Fields
	ExactlyOne ConstraintKind = "exactly_one"
	// AllOrNone requires either every one of Fields or none of them
	AllOrNone ConstraintKind = "all_or_none"
	// Requires makes Fields mandatory once Field is present
	Requires ConstraintKind = "requires"
	// RequiredIf makes Fields mandatory once Field equals Equals
	RequiredIf ConstraintKind = "required_if"
)

// Constraint is a predicate over a whole JSON object, run once every
// member field passed its own check
type Constraint struct {
	Kind   ConstraintKind
	Fields []string
	Field  string
	Equals string
}

// Evaluate checks obj and returns the name of the offending field on failure
func (c Constraint) Evaluate(obj map[string]any) (bool, string) {
	switch c.Kind {
	case MutuallyExclusive:
		present := presentFields(obj, c.Fields)
		if len(present) > 1 {
			return false, present[1]
		}
	case ExactlyOne:
		present := presentFields(obj, c.Fields)
		switch len(present) {
		case 0:
			return false, c.Fields[0]
		case 1:
		default:
			return false, present[1]
		}
	case AllOrNone:
		present := presentFields(obj, c.Fields)
		if len(present) != 0 && len(present) != len(c.Fields) {
			return false, firstAbsent(obj, c.Fields)
		}
	case Requires:
		if _, ok := obj[c.Field]; ok {
			if missing := firstAbsent(obj, c.Fields); missing != "" {
				return false, missing
			}
		}
	case RequiredIf:
		v, ok := obj[c.Field]
		if !ok {
			break
		}
		raw, primitive := Primitive(v)
		if primitive && raw != nil && *raw == c.Equals {
			if missing := firstAbsent(obj, c.Fields); missing != "" {
				return false, missing
			}
		}
	}
	return true, ""
}

func (c Constraint) check(known map[string]bool) error {
	switch c.Kind {
	case MutuallyExclusive, ExactlyOne, AllOrNone:
		if len(c.Fields) < 2 {
			return fmt.Errorf("%s constraint needs at least two fields", c.Kind)
		}
	case Requires, RequiredIf:
		if c.Field == "" || len(c.Fields) == 0 {
			return fmt.Errorf("%s constraint needs a trigger field and required fields", c.Kind)
		}
		if !known[c.Field] {
			return fmt.Errorf("%s constraint names unknown field %q", c.Kind, c.Field)
		}
	default:
		return fmt.Errorf("unknown constraint kind %q", c.Kind)
	}
	for _, f := range c.Fields {
		if !known[f] {
			return fmt.Errorf("%s constraint names unknown field %q", c.Kind, f)
		}
	}
	return nil
}

func presentFields(obj map[string]any, fields []string) []string {
	var present []string
	for _, f := range fields {
		if _, ok := obj[f]; ok {
			present = append(present, f)
		}
	}
	return present
}

func firstAbsent(obj map[string]any, fields []string) string {
	for _, f := range fields {
		if _, ok := obj[f]; !ok {
			return f
		}
	}
	return ""
}

// Primitive renders a decoded JSON value as the raw string a Rule checks.
// JSON null yields a nil string, objects and arrays yield ok == false.
func Primitive(v any) (raw *string, ok bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		s = strconv.Itoa(t)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case int64:
		s = strconv.FormatInt(t, 10)
	case uint32:
		s = strconv.FormatUint(uint64(t), 10)
	case uint64:
		s = strconv.FormatUint(t, 10)
	default:
		return nil, false
	}
	return &s, true
}
