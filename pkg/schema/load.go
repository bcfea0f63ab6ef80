// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/big"

	"gopkg.in/yaml.v3"

	"github.com/opiproject/opi-vtn-coordinator/pkg/rule"
)

//go:embed schemas/vtn.yaml
var builtinTable []byte

// maxRepetition is the largest page size a list read accepts
var maxRepetition = big.NewInt(4294967295)

type tableDoc struct {
	// Definitions only hosts YAML anchors reused by the resources
	Definitions map[string]any `yaml:"definitions"`
	Resources   []resourceDoc  `yaml:"resources"`
}

type resourceDoc struct {
	Type       string     `yaml:"type"`
	Singular   string     `yaml:"singular"`
	Collection string     `yaml:"collection"`
	Path       []fieldDoc `yaml:"path"`
	Read       *readDoc   `yaml:"read"`
	ID         *idDoc     `yaml:"id"`
	Methods    struct {
		Singular   map[Method]bodyDoc `yaml:"singular"`
		Collection map[Method]bodyDoc `yaml:"collection"`
	} `yaml:"methods"`
}

type idDoc struct {
	Separator string `yaml:"separator"`
	Parts     []struct {
		Field  string `yaml:"field"`
		Absent string `yaml:"absent"`
	} `yaml:"parts"`
}

type readDoc struct {
	Fields      []fieldDoc      `yaml:"fields"`
	Index       *rule.Doc       `yaml:"index"`
	Constraints []constraintDoc `yaml:"constraints"`
}

type bodyDoc struct {
	Root         string          `yaml:"root"`
	OptionalRoot bool            `yaml:"optional_root"`
	Fields       []fieldDoc      `yaml:"fields"`
	Constraints  []constraintDoc `yaml:"constraints"`
}

type fieldDoc struct {
	Name        string          `yaml:"name"`
	Rule        *rule.Doc       `yaml:"rule"`
	Required    bool            `yaml:"required"`
	Default     *string         `yaml:"default"`
	Methods     []Method        `yaml:"methods"`
	Fields      []fieldDoc      `yaml:"fields"`
	Constraints []constraintDoc `yaml:"constraints"`
}

type constraintDoc struct {
	Kind   ConstraintKind `yaml:"kind"`
	Fields []string       `yaml:"fields"`
	Field  string         `yaml:"field"`
	Equals string         `yaml:"equals"`
}

// Load reads a declarative schema table and builds one ResourceSchema per entry.
// Every returned schema passed Check.
func Load(r io.Reader) ([]*ResourceSchema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc tableDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	schemas := make([]*ResourceSchema, 0, len(doc.Resources))
	for i := range doc.Resources {
		s, err := doc.Resources[i].build()
		if err != nil {
			return nil, err
		}
		if err := s.Check(); err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}

// Builtin returns the schemas of every VTN resource the coordinator serves
func Builtin() ([]*ResourceSchema, error) {
	return Load(bytes.NewReader(builtinTable))
}

func (d *resourceDoc) build() (*ResourceSchema, error) {
	wrap := func(err error) error {
		return fmt.Errorf("%w: resource %q: %v", ErrInvalidSchema, d.Type, err)
	}

	path := make(map[string]FieldSpec, len(d.Path))
	for _, fd := range d.Path {
		f, err := fd.build()
		if err != nil {
			return nil, wrap(err)
		}
		path[f.Name] = f
	}

	var read *BodySpec
	if d.Read != nil {
		var err error
		if read, err = d.Read.build(); err != nil {
			return nil, wrap(err)
		}
	}

	s := &ResourceSchema{Type: d.Type}
	var err error
	if d.Singular != "" {
		if s.Singular, err = buildForm(d.Singular, path, d.Methods.Singular, read); err != nil {
			return nil, wrap(err)
		}
	} else if len(d.Methods.Singular) != 0 {
		return nil, wrap(errors.New("singular methods without singular pattern"))
	}
	if d.Collection != "" {
		if s.Collection, err = buildForm(d.Collection, path, d.Methods.Collection, read); err != nil {
			return nil, wrap(err)
		}
	} else if len(d.Methods.Collection) != 0 {
		return nil, wrap(errors.New("collection methods without collection pattern"))
	}
	if d.ID != nil {
		s.ID = &MemberID{Separator: d.ID.Separator}
		for _, p := range d.ID.Parts {
			s.ID.Parts = append(s.ID.Parts, IDPart{Field: p.Field, Absent: p.Absent})
		}
	}
	return s, nil
}

func buildForm(pattern string, path map[string]FieldSpec, methods map[Method]bodyDoc, read *BodySpec) (*Form, error) {
	form := &Form{Pattern: pattern, Methods: make(map[Method]*BodySpec, len(methods)+1)}
	for _, v := range PatternVariables(pattern) {
		f, ok := path[v]
		if !ok {
			return nil, fmt.Errorf("pattern %s: no path field for {%s}", pattern, v)
		}
		form.PathFields = append(form.PathFields, f)
	}
	for key, bd := range methods {
		m, err := ParseMethod(string(key))
		if err != nil {
			return nil, err
		}
		body, err := bd.build()
		if err != nil {
			return nil, fmt.Errorf("%s %s: %v", m, pattern, err)
		}
		form.Methods[m] = body
	}
	if read != nil {
		if _, ok := form.Methods[MethodGet]; ok {
			return nil, fmt.Errorf("%s: GET defined both by read and by methods", pattern)
		}
		form.Methods[MethodGet] = read
	}
	return form, nil
}

func (d *readDoc) build() (*BodySpec, error) {
	fields, err := buildFields(d.Fields)
	if err != nil {
		return nil, err
	}
	body := &BodySpec{Fields: fields, Constraints: buildConstraints(d.Constraints)}
	body.ListFields = append(body.ListFields, FieldSpec{
		Name:    KeyOp,
		Rule:    rule.EnumMembership([]string{"count", "detail", "normal"}),
		Default: strPtr("normal"),
	})
	if d.Index != nil {
		r, err := rule.Parse(*d.Index)
		if err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		body.ListFields = append(body.ListFields, FieldSpec{Name: KeyIndex, Rule: r})
	}
	body.ListFields = append(body.ListFields, FieldSpec{
		Name: KeyMax,
		Rule: rule.BigIntRange(big.NewInt(1), maxRepetition),
	})
	return body, nil
}

func (d *bodyDoc) build() (*BodySpec, error) {
	fields, err := buildFields(d.Fields)
	if err != nil {
		return nil, err
	}
	if d.Root == "" && d.OptionalRoot {
		return nil, errors.New("optional_root without root")
	}
	return &BodySpec{
		Root:         d.Root,
		RootRequired: d.Root != "" && !d.OptionalRoot,
		Fields:       fields,
		Constraints:  buildConstraints(d.Constraints),
	}, nil
}

func (d *fieldDoc) build() (FieldSpec, error) {
	f := FieldSpec{
		Name:     d.Name,
		Required: d.Required,
		Default:  d.Default,
	}
	for _, key := range d.Methods {
		m, err := ParseMethod(string(key))
		if err != nil {
			return f, fmt.Errorf("field %q: %v", d.Name, err)
		}
		f.AppliesTo = append(f.AppliesTo, m)
	}
	switch {
	case d.Rule != nil:
		r, err := rule.Parse(*d.Rule)
		if err != nil {
			return f, fmt.Errorf("field %q: %w", d.Name, err)
		}
		f.Rule = r
	case len(d.Fields) != 0:
		f.Rule = rule.Object()
	default:
		return f, fmt.Errorf("field %q: no rule", d.Name)
	}
	var err error
	if f.Fields, err = buildFields(d.Fields); err != nil {
		return f, fmt.Errorf("field %q: %v", d.Name, err)
	}
	f.Constraints = buildConstraints(d.Constraints)
	return f, nil
}

func buildFields(docs []fieldDoc) ([]FieldSpec, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	fields := make([]FieldSpec, 0, len(docs))
	for i := range docs {
		f, err := docs[i].build()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func buildConstraints(docs []constraintDoc) []Constraint {
	if len(docs) == 0 {
		return nil
	}
	constraints := make([]Constraint, 0, len(docs))
	for _, d := range docs {
		constraints = append(constraints, Constraint(d))
	}
	return constraints
}

func strPtr(s string) *string {
	return &s
}
