// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package registry maps resource types and URI paths to their schemas
package registry

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.einride.tech/aip/resourcename"

	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
)

var (
	// ErrSealed is returned by Register once the registry was sealed
	ErrSealed = errors.New("registry is sealed")
	// ErrUnknownResource is returned by Lookup for unregistered resource types
	ErrUnknownResource = errors.New("unknown resource type")
	// ErrNoRoute is returned by Resolve when no registered pattern matches a path
	ErrNoRoute = errors.New("no resource matches path")
	// ErrDuplicate is returned when a resource type or pattern is registered twice
	ErrDuplicate = errors.New("already registered")
)

// Target is the resource form a URI path resolved to
type Target struct {
	Schema *schema.ResourceSchema
	// List is set when the collection form matched
	List bool
	// Params holds the path parameters in pattern order
	Params []string
}

type route struct {
	pattern  string
	schema   *schema.ResourceSchema
	list     bool
	literals int
}

// Registry holds the resource schemas. Registration happens at startup,
// after Seal the registry is read only and lookups take no lock.
type Registry struct {
	mu     sync.Mutex
	sealed bool
	types  map[string]*schema.ResourceSchema
	routes []route
}

// New creates an empty registry
func New() *Registry {
	return &Registry{types: make(map[string]*schema.ResourceSchema)}
}

// NewBuiltin creates a sealed registry holding every builtin VTN resource
func NewBuiltin() (*Registry, error) {
	r := New()
	schemas, err := schema.Builtin()
	if err != nil {
		return nil, err
	}
	if err := r.RegisterAll(schemas); err != nil {
		return nil, err
	}
	r.Seal()
	return r, nil
}

// Register adds a schema. The schema must pass Check and neither its type
// nor any of its patterns may already be registered.
func (r *Registry) Register(s *schema.ResourceSchema) error {
	if s == nil {
		return fmt.Errorf("%w: nil schema", schema.ErrInvalidSchema)
	}
	if err := s.Check(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if _, ok := r.types[s.Type]; ok {
		return fmt.Errorf("resource type %s: %w", s.Type, ErrDuplicate)
	}
	var added []route
	for _, form := range s.Forms() {
		for _, rt := range r.routes {
			if rt.pattern == form.Pattern {
				return fmt.Errorf("pattern %s of %s: %w by %s", form.Pattern, s.Type, ErrDuplicate, rt.schema.Type)
			}
		}
		added = append(added, route{
			pattern:  form.Pattern,
			schema:   s,
			list:     form == s.Collection,
			literals: len(strings.Split(form.Pattern, "/")) - len(form.PathFields),
		})
	}
	r.types[s.Type] = s
	r.routes = append(r.routes, added...)
	// most specific patterns first so literal segments win over variables
	sort.SliceStable(r.routes, func(i, j int) bool {
		return r.routes[i].literals > r.routes[j].literals
	})
	return nil
}

// RegisterAll registers every schema, stopping at the first failure
func (r *Registry) RegisterAll(schemas []*schema.ResourceSchema) error {
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// Load registers every schema of a declarative YAML table
func (r *Registry) Load(in io.Reader) error {
	schemas, err := schema.Load(in)
	if err != nil {
		return err
	}
	return r.RegisterAll(schemas)
}

// Seal makes the registry read only
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal was called
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Lookup returns the schema of a resource type
func (r *Registry) Lookup(resourceType string) (*schema.ResourceSchema, error) {
	s, ok := r.types[resourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resourceType)
	}
	return s, nil
}

// Types returns the registered resource types, sorted
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.types))
	for t := range r.types {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Resolve finds the resource form addressed by a URI path such as
// /vtns/vtn1/vbridges.json and extracts its path parameters
func (r *Registry) Resolve(path string) (Target, error) {
	name := strings.TrimSuffix(strings.TrimPrefix(path, "/"), ".json")
	for _, rt := range r.routes {
		if !resourcename.Match(rt.pattern, name) {
			continue
		}
		params := make([]string, len(rt.schema.Form(rt.list).PathFields))
		ptrs := make([]*string, len(params))
		for i := range params {
			ptrs[i] = &params[i]
		}
		if err := resourcename.Sscan(name, rt.pattern, ptrs...); err != nil {
			return Target{}, fmt.Errorf("%w: %v", ErrNoRoute, err)
		}
		return Target{Schema: rt.schema, List: rt.list, Params: params}, nil
	}
	return Target{}, fmt.Errorf("%w: %s", ErrNoRoute, path)
}
