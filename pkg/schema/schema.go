// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package schema describes the shape of every REST resource: its URI path
// parameters and, per HTTP method, the fields its JSON body may carry
package schema

import (
	"errors"
	"fmt"
	"strings"

	"go.einride.tech/aip/resourcename"

	"github.com/opiproject/opi-vtn-coordinator/pkg/rule"
)

// ErrInvalidSchema is returned for schemas that are internally inconsistent
var ErrInvalidSchema = errors.New("invalid schema")

// Method is an HTTP method token
type Method string

// Supported methods
const (
	MethodGet    Method = "GET"
	MethodPut    Method = "PUT"
	MethodPost   Method = "POST"
	MethodDelete Method = "DELETE"
)

// ParseMethod converts an HTTP method token, case insensitively
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(s))
	switch m {
	case MethodGet, MethodPut, MethodPost, MethodDelete:
		return m, nil
	}
	return "", fmt.Errorf("unsupported method %q", s)
}

// Names of the list operation keys, accepted on collection reads only
const (
	KeyOp    = "op"
	KeyIndex = "index"
	KeyMax   = "max"
)

// FieldSpec binds a rule to a named field
type FieldSpec struct {
	Name     string
	Rule     rule.Rule
	Required bool
	Default  *string
	// AppliesTo restricts the field to some methods, empty means all of them
	AppliesTo []Method
	// Fields and Constraints describe the members of a nested object
	Fields      []FieldSpec
	Constraints []Constraint
}

// AppliesToMethod reports whether the field is checked for m
func (f *FieldSpec) AppliesToMethod(m Method) bool {
	if len(f.AppliesTo) == 0 {
		return true
	}
	for _, a := range f.AppliesTo {
		if a == m {
			return true
		}
	}
	return false
}

// IsObject reports whether the field holds a nested object
func (f *FieldSpec) IsObject() bool {
	return f.Rule != nil && f.Rule.Kind() == rule.KindObject
}

// BodySpec lists the fields a request body may carry for one method
type BodySpec struct {
	// Root is the wrapper key of the body, e.g. "vtn" for {"vtn": {...}}.
	// An empty root means the fields sit at the top level.
	Root         string
	RootRequired bool
	Fields       []FieldSpec
	// ListFields are validated on collection reads and stripped on singular reads
	ListFields  []FieldSpec
	Constraints []Constraint
}

// Form is one addressable shape of a resource, singular or collection
type Form struct {
	Pattern    string
	PathFields []FieldSpec
	Methods    map[Method]*BodySpec
}

// Body returns the body spec for m, if the form supports that method
func (f *Form) Body(m Method) (*BodySpec, bool) {
	if f == nil {
		return nil, false
	}
	b, ok := f.Methods[m]
	return b, ok
}

// SupportedMethods returns the methods the form accepts in a stable order
func (f *Form) SupportedMethods() []Method {
	var methods []Method
	for _, m := range []Method{MethodGet, MethodPost, MethodPut, MethodDelete} {
		if _, ok := f.Methods[m]; ok {
			methods = append(methods, m)
		}
	}
	return methods
}

// ResourceSchema describes one resource type
type ResourceSchema struct {
	Type       string
	Singular   *Form
	Collection *Form
	// ID derives the member id of created resources whose body does not
	// carry it, e.g. static routes
	ID *MemberID
}

// IDPart is one body field of a derived member id
type IDPart struct {
	Field string
	// Absent stands in for the value when the field is missing
	Absent string
}

// MemberID joins body fields into the id of a new collection member
type MemberID struct {
	Separator string
	Parts     []IDPart
}

// Derive builds the id from obj, the object holding the body fields.
// ok is false when a part without an Absent value is missing.
func (id *MemberID) Derive(obj map[string]any) (string, bool) {
	values := make([]string, 0, len(id.Parts))
	for _, p := range id.Parts {
		raw, primitive := Primitive(obj[p.Field])
		switch {
		case primitive && raw != nil && *raw != "":
			values = append(values, *raw)
		case p.Absent != "":
			values = append(values, p.Absent)
		default:
			return "", false
		}
	}
	return strings.Join(values, id.Separator), true
}

// Form returns the collection form when list is set, the singular one otherwise
func (s *ResourceSchema) Form(list bool) *Form {
	if list {
		return s.Collection
	}
	return s.Singular
}

// Forms returns the defined forms, collection first
func (s *ResourceSchema) Forms() []*Form {
	var forms []*Form
	if s.Collection != nil {
		forms = append(forms, s.Collection)
	}
	if s.Singular != nil {
		forms = append(forms, s.Singular)
	}
	return forms
}

// Check reports internal inconsistencies of the schema
func (s *ResourceSchema) Check() error {
	if s.Type == "" {
		return fmt.Errorf("%w: missing resource type", ErrInvalidSchema)
	}
	if s.Singular == nil && s.Collection == nil {
		return fmt.Errorf("%w: %s has no form", ErrInvalidSchema, s.Type)
	}
	for _, form := range s.Forms() {
		if err := form.check(); err != nil {
			return fmt.Errorf("%w: %s %s: %v", ErrInvalidSchema, s.Type, form.Pattern, err)
		}
	}
	if s.ID != nil {
		if err := s.checkID(); err != nil {
			return fmt.Errorf("%w: %s id: %v", ErrInvalidSchema, s.Type, err)
		}
	}
	return nil
}

func (s *ResourceSchema) checkID() error {
	post, ok := s.Collection.Body(MethodPost)
	if !ok {
		return errors.New("derived ids need a collection POST")
	}
	if len(s.ID.Parts) == 0 {
		return errors.New("no parts")
	}
	for _, p := range s.ID.Parts {
		found := false
		for i := range post.Fields {
			if post.Fields[i].Name == p.Field && !post.Fields[i].IsObject() {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("part %q is not a primitive POST field", p.Field)
		}
	}
	return nil
}

func (f *Form) check() error {
	if err := resourcename.ValidatePattern(f.Pattern); err != nil {
		return err
	}
	vars := PatternVariables(f.Pattern)
	if len(vars) != len(f.PathFields) {
		return fmt.Errorf("pattern has %d variables but %d path fields", len(vars), len(f.PathFields))
	}
	for i, v := range vars {
		pf := f.PathFields[i]
		if pf.Name != v {
			return fmt.Errorf("path field %d is %q, pattern expects %q", i, pf.Name, v)
		}
		if pf.Rule == nil || pf.IsObject() {
			return fmt.Errorf("path field %q needs a primitive rule", pf.Name)
		}
	}
	if len(f.Methods) == 0 {
		return errors.New("no methods")
	}
	for m, body := range f.Methods {
		if body == nil {
			return fmt.Errorf("%s: nil body spec", m)
		}
		if err := checkFields(body.Fields, body.Constraints); err != nil {
			return fmt.Errorf("%s: %v", m, err)
		}
		if err := checkFields(body.ListFields, nil); err != nil {
			return fmt.Errorf("%s list fields: %v", m, err)
		}
	}
	return nil
}

func checkFields(fields []FieldSpec, constraints []Constraint) error {
	seen := make(map[string]bool, len(fields))
	byName := make(map[string][]*FieldSpec, len(fields))
	for i := range fields {
		f := &fields[i]
		if f.Name == "" {
			return errors.New("field without name")
		}
		for _, other := range byName[f.Name] {
			if overlaps(f, other) {
				return fmt.Errorf("duplicate field %q", f.Name)
			}
		}
		byName[f.Name] = append(byName[f.Name], f)
		seen[f.Name] = true
		if f.Rule == nil {
			return fmt.Errorf("field %q has no rule", f.Name)
		}
		if f.IsObject() {
			if len(f.Fields) == 0 {
				return fmt.Errorf("object field %q has no members", f.Name)
			}
			if f.Default != nil {
				return fmt.Errorf("object field %q cannot have a default", f.Name)
			}
			if err := checkFields(f.Fields, f.Constraints); err != nil {
				return fmt.Errorf("%s: %v", f.Name, err)
			}
		} else if len(f.Fields) != 0 || len(f.Constraints) != 0 {
			return fmt.Errorf("primitive field %q has members", f.Name)
		}
		if f.Default != nil && !f.Rule.Evaluate(f.Default) {
			return fmt.Errorf("default %q of field %q violates %v", *f.Default, f.Name, f.Rule)
		}
	}
	for _, c := range constraints {
		if err := c.check(seen); err != nil {
			return err
		}
	}
	return nil
}

// overlaps reports whether two specs of the same name would both apply to a method
func overlaps(a, b *FieldSpec) bool {
	if len(a.AppliesTo) == 0 || len(b.AppliesTo) == 0 {
		return true
	}
	for _, m := range a.AppliesTo {
		if b.AppliesToMethod(m) {
			return true
		}
	}
	return false
}

// PatternVariables returns the variable names of a resource name pattern in order,
// e.g. vtns/{vtn_name}/vbridges/{vbr_name} gives [vtn_name vbr_name]
func PatternVariables(pattern string) []string {
	var vars []string
	var sc resourcename.Scanner
	sc.Init(pattern)
	for sc.Scan() {
		if seg := sc.Segment(); seg.IsVariable() {
			vars = append(vars, string(seg.Literal()))
		}
	}
	return vars
}
