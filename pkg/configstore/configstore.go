// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package configstore applies accepted requests to the configuration kept in a
// key value store, keyed by resource name such as vtns/vtn1/vbridges/vbr1
package configstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/gokv"
	log "github.com/sirupsen/logrus"
	"go.einride.tech/aip/resourceid"
	"go.einride.tech/aip/resourcename"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opiproject/opi-vtn-coordinator/pkg/registry"
	"github.com/opiproject/opi-vtn-coordinator/pkg/rule"
	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
	"github.com/opiproject/opi-vtn-coordinator/pkg/utils"
)

var (
	// ErrNotFound is returned when the addressed resource or its parent does not exist
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is returned when creating a resource that already exists
	ErrConflict = errors.New("resource already exists")
)

// catalogKey holds the sorted names of every stored resource. Underscores
// never appear in literal pattern segments, so no resource can collide with it.
const catalogKey = "_catalog"

// List operations selected by the op key
const (
	OpCount  = "count"
	OpDetail = "detail"
	OpNormal = "normal"
)

type record struct {
	Name string          `json:"name"`
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Store dispatches accepted requests to a gokv store
type Store struct {
	mu     sync.Mutex
	kv     gokv.Store
	tracer trace.Tracer
}

// New creates a Store over kv
func New(kv gokv.Store) *Store {
	if kv == nil {
		log.Panic("nil for Store is not allowed")
	}
	return &Store{kv: kv, tracer: otel.Tracer("")}
}

// Dispatch applies a validated request addressed to target and returns the
// response object. body must be the normalized body of an accepted request.
func (s *Store) Dispatch(ctx context.Context, target registry.Target, method schema.Method, body map[string]any) (map[string]any, error) {
	form := target.Schema.Form(target.List)
	if form == nil {
		return nil, fmt.Errorf("%s has no %s form", target.Schema.Type, formName(target.List))
	}
	name := resourcename.Sprint(form.Pattern, canonicalParams(form, target.Params)...)

	_, span := s.tracer.Start(ctx, "Dispatch", trace.WithAttributes(
		attribute.String("vtn.resource", target.Schema.Type),
		attribute.String("vtn.name", name),
		attribute.String("vtn.method", string(method)),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case method == schema.MethodPost && target.List:
		return s.create(target.Schema, name, body)
	case method == schema.MethodPut && !target.List:
		return s.update(target.Schema, form.Pattern, name, body)
	case method == schema.MethodDelete && !target.List:
		return nil, s.remove(name)
	case method == schema.MethodGet && !target.List:
		return s.get(name)
	case method == schema.MethodGet && target.List:
		return s.list(target.Schema, name, body)
	}
	return nil, fmt.Errorf("%s on %s form of %s is not dispatchable", method, formName(target.List), target.Schema.Type)
}

// create stores a new member of the collection name. The member id is taken
// from the body field named like the last variable of the singular pattern,
// derived from the body by the schema's id recipe, or generated.
func (s *Store) create(rs *schema.ResourceSchema, collection string, body map[string]any) (map[string]any, error) {
	idVar := memberVariable(rs)
	obj := rootObject(rs, schema.MethodPost, body)
	id := ""
	if v, ok := obj[idVar]; ok {
		if raw, primitive := schema.Primitive(v); primitive && raw != nil {
			id = *raw
			if numericID(rs) {
				id = canonicalNumber(id)
			}
		}
	}
	if id == "" && rs.ID != nil {
		id, _ = rs.ID.Derive(obj)
	}
	if id == "" {
		id = resourceid.NewSystemGenerated()
		log.Printf("no %s in %s request, generated id %s", idVar, rs.Type, id)
	}
	name := collection + "/" + id

	if rs.Singular == nil {
		return nil, fmt.Errorf("%s has no singular form to create", rs.Type)
	}
	if err := s.checkParent(rs.Singular.Pattern, name); err != nil {
		return nil, err
	}
	if _, ok, err := s.load(name); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrConflict, name)
	}
	if err := s.save(record{Name: name, Type: rs.Type}, body); err != nil {
		return nil, err
	}
	log.Printf("created %s %s", rs.Type, name)
	return body, nil
}

// update merges body into an existing resource. Resources without a
// collection to be created from are created by their first PUT.
func (s *Store) update(rs *schema.ResourceSchema, pattern, name string, body map[string]any) (map[string]any, error) {
	stored, ok, err := s.load(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, creatable := rs.Collection.Body(schema.MethodPost); creatable {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err := s.checkParent(pattern, name); err != nil {
			return nil, err
		}
		if err := s.save(record{Name: name, Type: rs.Type}, body); err != nil {
			return nil, err
		}
		log.Printf("created %s %s", rs.Type, name)
		return body, nil
	}

	merged, err := stored.decode()
	if err != nil {
		return nil, err
	}
	if merged == nil {
		merged = make(map[string]any)
	}
	merge(merged, body)
	if err := s.save(stored, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// remove deletes name and every resource below it
func (s *Store) remove(name string) error {
	if _, ok, err := s.load(name); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	catalog, err := s.catalog()
	if err != nil {
		return err
	}
	kept := catalog[:0]
	for _, n := range catalog {
		if n == name || strings.HasPrefix(n, name+"/") {
			if err := s.kv.Delete(n); err != nil {
				return err
			}
			log.Printf("deleted %s", n)
			continue
		}
		kept = append(kept, n)
	}
	return s.kv.Set(catalogKey, kept)
}

func (s *Store) get(name string) (map[string]any, error) {
	rec, ok, err := s.load(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return rec.decode()
}

// list reads the direct members of collection, honoring the list keys:
// op selects count, names only or full objects, index starts the listing
// after the given id and max limits the number of members returned
func (s *Store) list(rs *schema.ResourceSchema, collection string, body map[string]any) (map[string]any, error) {
	op, index, limit, err := listOptions(body)
	if err != nil {
		return nil, err
	}

	catalog, err := s.catalog()
	if err != nil {
		return nil, err
	}
	numeric := numericID(rs)
	if numeric && index != "" {
		index = canonicalNumber(index)
	}
	prefix := collection + "/"
	var ids []string
	for _, n := range catalog {
		id, found := strings.CutPrefix(n, prefix)
		if !found || strings.Contains(id, "/") {
			continue
		}
		if index != "" && compareIDs(numeric, id, index) <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return compareIDs(numeric, ids[i], ids[j]) < 0 })
	log.Printf("Limiting result len(%d) to [0:%d]", len(ids), limit)
	if limit > 0 && uint64(len(ids)) > limit {
		ids = ids[:limit]
	}

	key := collection[strings.LastIndex(collection, "/")+1:]
	if op == OpCount {
		return map[string]any{key: map[string]any{"count": json.Number(strconv.Itoa(len(ids)))}}, nil
	}

	idVar := memberVariable(rs)
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		if op != OpDetail {
			members = append(members, map[string]any{idVar: id})
			continue
		}
		obj, err := s.get(prefix + id)
		if err != nil {
			return nil, err
		}
		members = append(members, unwrap(rs, obj))
	}
	return map[string]any{key: members}, nil
}

func listOptions(body map[string]any) (op, index string, limit uint64, err error) {
	op = OpNormal
	if raw, ok := schema.Primitive(body[schema.KeyOp]); ok && raw != nil {
		op = *raw
	}
	if raw, ok := schema.Primitive(body[schema.KeyIndex]); ok && raw != nil {
		index = *raw
	}
	if raw, ok := schema.Primitive(body[schema.KeyMax]); ok && raw != nil {
		if limit, err = strconv.ParseUint(*raw, 10, 64); err != nil {
			return "", "", 0, fmt.Errorf("max %q: %w", *raw, err)
		}
	}
	return op, index, limit, nil
}

// checkParent verifies that the closest ancestor named by a pattern variable
// exists, e.g. vtns/vtn1 for vtns/vtn1/flowfilters/in
func (s *Store) checkParent(pattern, name string) error {
	parent := parentName(pattern, name)
	if parent == "" {
		return nil
	}
	if _, ok, err := s.load(parent); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: parent %s of %s", ErrNotFound, parent, name)
	}
	return nil
}

// parentName cuts name after the last variable segment of pattern that is not
// its final segment. Names without such a segment are top level.
func parentName(pattern, name string) string {
	var variables []bool
	var sc resourcename.Scanner
	sc.Init(pattern)
	for sc.Scan() {
		variables = append(variables, sc.Segment().IsVariable())
	}
	segments := strings.Split(name, "/")
	if len(segments) != len(variables) {
		return ""
	}
	for i := len(variables) - 2; i >= 0; i-- {
		if variables[i] {
			return strings.Join(segments[:i+1], "/")
		}
	}
	return ""
}

func (s *Store) load(name string) (record, bool, error) {
	var rec record
	ok, err := s.kv.Get(name, &rec)
	if err != nil {
		log.Errorf("Failed to interact with store: %v", err)
		return rec, false, err
	}
	return rec, ok, nil
}

func (s *Store) save(rec record, body map[string]any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	rec.Body = raw
	if err := s.kv.Set(rec.Name, rec); err != nil {
		return err
	}
	catalog, err := s.catalog()
	if err != nil {
		return err
	}
	i := sort.SearchStrings(catalog, rec.Name)
	if i < len(catalog) && catalog[i] == rec.Name {
		return nil
	}
	catalog = append(catalog, "")
	copy(catalog[i+1:], catalog[i:])
	catalog[i] = rec.Name
	return s.kv.Set(catalogKey, catalog)
}

func (s *Store) catalog() ([]string, error) {
	var catalog []string
	if _, err := s.kv.Get(catalogKey, &catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (r record) decode() (map[string]any, error) {
	if len(r.Body) == 0 {
		return nil, nil
	}
	obj, err := utils.DecodeObject(bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("stored %s: %w", r.Name, err)
	}
	return obj, nil
}

// numericID reports whether members of rs are keyed by a number, like the
// seqnum of flow list entries
func numericID(rs *schema.ResourceSchema) bool {
	if rs.Singular == nil || len(rs.Singular.PathFields) == 0 {
		return false
	}
	return isNumeric(&rs.Singular.PathFields[len(rs.Singular.PathFields)-1])
}

func isNumeric(f *schema.FieldSpec) bool {
	if f.Rule == nil {
		return false
	}
	kind := f.Rule.Kind()
	return kind == rule.KindRange || kind == rule.KindBigIntRange
}

// canonicalParams rewrites numeric path parameters so that 010 and 10 name
// the same resource
func canonicalParams(form *schema.Form, params []string) []string {
	out := make([]string, len(params))
	copy(out, params)
	for i := range form.PathFields {
		if i < len(out) && isNumeric(&form.PathFields[i]) {
			out[i] = canonicalNumber(out[i])
		}
	}
	return out
}

func canonicalNumber(raw string) string {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return raw
	}
	return n.String()
}

// compareIDs orders numeric ids by value and every other id as text
func compareIDs(numeric bool, a, b string) int {
	if numeric {
		x, okx := new(big.Int).SetString(a, 10)
		y, oky := new(big.Int).SetString(b, 10)
		if okx && oky {
			return x.Cmp(y)
		}
	}
	return strings.Compare(a, b)
}

func memberVariable(rs *schema.ResourceSchema) string {
	if rs.Singular != nil {
		if vars := schema.PatternVariables(rs.Singular.Pattern); len(vars) != 0 {
			return vars[len(vars)-1]
		}
	}
	return "name"
}

// rootObject returns the object holding the fields of body
func rootObject(rs *schema.ResourceSchema, method schema.Method, body map[string]any) map[string]any {
	spec, ok := rs.Collection.Body(method)
	if !ok || spec.Root == "" {
		return body
	}
	obj, _ := body[spec.Root].(map[string]any)
	return obj
}

func unwrap(rs *schema.ResourceSchema, obj map[string]any) any {
	if rs.Singular != nil {
		for _, m := range []schema.Method{schema.MethodPut, schema.MethodPost} {
			if spec, ok := rs.Singular.Body(m); ok && spec.Root != "" {
				if inner, ok := obj[spec.Root]; ok {
					return inner
				}
			}
		}
	}
	if spec, ok := rs.Collection.Body(schema.MethodPost); ok && spec.Root != "" {
		if inner, ok := obj[spec.Root]; ok {
			return inner
		}
	}
	return obj
}

// merge copies src into dst, descending into objects present on both sides
func merge(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				merge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

func formName(list bool) string {
	if list {
		return "collection"
	}
	return "singular"
}
