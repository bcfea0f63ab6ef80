// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

package validator

import (
	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
)

// walker tracks the field under evaluation so that a panic inside a rule
// still produces a rejection naming that field
type walker struct {
	method  schema.Method
	current string
}

func (w *walker) guard(ok *bool, field *string) {
	if r := recover(); r != nil {
		log.Errorf("rule evaluation of field %q panicked: %v", w.current, r)
		*ok = false
		*field = w.current
	}
}

// ValidatePath checks the URI path parameters against the form's path fields,
// in pattern order. It returns the name of the first failing field.
func ValidatePath(form *schema.Form, params []string) (ok bool, field string) {
	w := &walker{}
	defer w.guard(&ok, &field)

	for i := range form.PathFields {
		f := &form.PathFields[i]
		w.current = f.Name
		if i >= len(params) {
			return false, f.Name
		}
		if !f.Rule.Evaluate(&params[i]) {
			return false, f.Name
		}
	}
	if len(params) > len(form.PathFields) {
		return false, ""
	}
	return true, ""
}

// ValidateBody checks an already normalized body against spec. Fields are
// checked in declaration order, nested objects depth first, and the cross
// field constraints of an object run once all of its fields passed. On a
// collection read the list keys are checked too. It returns the name of the
// first failing field.
func ValidateBody(spec *schema.BodySpec, method schema.Method, list bool, body map[string]any) (ok bool, field string) {
	w := &walker{method: method}
	defer w.guard(&ok, &field)

	if body == nil {
		body = map[string]any{}
	}

	if list {
		if ok, field := w.object(body, spec.ListFields, nil); !ok {
			return false, field
		}
	}

	if spec.Root == "" {
		return w.object(body, spec.Fields, spec.Constraints)
	}

	w.current = spec.Root
	wrapped, present := body[spec.Root]
	if !present {
		if spec.RootRequired {
			return false, spec.Root
		}
		return true, ""
	}
	obj, isObject := wrapped.(map[string]any)
	if !isObject || obj == nil {
		return false, spec.Root
	}
	return w.object(obj, spec.Fields, spec.Constraints)
}

func (w *walker) object(obj map[string]any, fields []schema.FieldSpec, constraints []schema.Constraint) (bool, string) {
	for i := range fields {
		f := &fields[i]
		if !f.AppliesToMethod(w.method) {
			continue
		}
		w.current = f.Name
		v, present := obj[f.Name]
		if !present {
			if f.Required {
				return false, f.Name
			}
			continue
		}
		if f.IsObject() {
			nested, isObject := v.(map[string]any)
			if !isObject || nested == nil {
				return false, f.Name
			}
			if ok, field := w.object(nested, f.Fields, f.Constraints); !ok {
				return false, field
			}
			continue
		}
		raw, primitive := schema.Primitive(v)
		if !primitive || !f.Rule.Evaluate(raw) {
			return false, f.Name
		}
	}
	for _, c := range constraints {
		if ok, field := c.Evaluate(obj); !ok {
			w.current = field
			return false, field
		}
	}
	return true, ""
}
