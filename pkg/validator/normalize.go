// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

package validator

import (
	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
)

var listKeys = []string{schema.KeyOp, schema.KeyIndex, schema.KeyMax}

// Normalize returns a deep copy of body prepared for validation: on a read the
// list keys op, index and max are removed unless the form declares them, which
// only collection reads do, and every absent field that has a default gets it,
// in the wrapper object and in nested objects alike.
// body is never modified. A nil body stays nil unless a default was injected.
func Normalize(body map[string]any, spec *schema.BodySpec, method schema.Method, list bool) map[string]any {
	out := copyObject(body)
	if out == nil {
		out = make(map[string]any)
	}

	if method == schema.MethodGet {
		for _, k := range listKeys {
			if !list || !declaresListKey(spec, k) {
				delete(out, k)
			}
		}
	}

	if spec != nil {
		if list {
			injectDefaults(out, spec.ListFields, method)
		}
		switch {
		case spec.Root == "":
			injectDefaults(out, spec.Fields, method)
		default:
			if obj, ok := out[spec.Root].(map[string]any); ok {
				injectDefaults(obj, spec.Fields, method)
			}
		}
	}

	if body == nil && len(out) == 0 {
		return nil
	}
	return out
}

func declaresListKey(spec *schema.BodySpec, key string) bool {
	if spec == nil {
		return false
	}
	for i := range spec.ListFields {
		if spec.ListFields[i].Name == key {
			return true
		}
	}
	return false
}

func injectDefaults(obj map[string]any, fields []schema.FieldSpec, method schema.Method) {
	for i := range fields {
		f := &fields[i]
		if !f.AppliesToMethod(method) {
			continue
		}
		v, present := obj[f.Name]
		if !present {
			if f.Default != nil {
				obj[f.Name] = *f.Default
			}
			continue
		}
		if f.IsObject() {
			if nested, ok := v.(map[string]any); ok {
				injectDefaults(nested, f.Fields, method)
			}
		}
	}
}

func copyObject(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyObject(t)
	case []any:
		s := make([]any, len(t))
		for i := range t {
			s[i] = copyValue(t[i])
		}
		return s
	default:
		return v
	}
}
