// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opiproject/opi-vtn-coordinator/pkg/registry"
	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
	"github.com/opiproject/opi-vtn-coordinator/pkg/storage"
)

type step struct {
	method schema.Method
	path   string
	body   string
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	if body == "" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	require.NoError(t, dec.Decode(&obj))
	return obj
}

func newStore(t *testing.T, backend string) *Store {
	t.Helper()
	address := ""
	if backend == storage.BackendRedis {
		address = miniredis.RunT(t).Addr()
	}
	st, err := storage.NewStore(backend, address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st.GetClient())
}

func dispatch(t *testing.T, s *Store, reg *registry.Registry, st step) (map[string]any, error) {
	t.Helper()
	target, err := reg.Resolve(st.path)
	require.NoError(t, err)
	return s.Dispatch(context.Background(), target, st.method, decode(t, st.body))
}

func setup(t *testing.T, s *Store, reg *registry.Registry, steps ...step) {
	t.Helper()
	for _, st := range steps {
		_, err := dispatch(t, s, reg, st)
		require.NoError(t, err, "%s %s", st.method, st.path)
	}
}

var topology = []step{
	{schema.MethodPost, "/vtns", `{"vtn":{"vtn_name":"vtn1"}}`},
	{schema.MethodPost, "/vtns/vtn1/vbridges", `{"vbridge":{"vbr_name":"vbr1","controller_id":"pfc1","domain_id":"(DEFAULT)"}}`},
	{schema.MethodPost, "/vtns/vtn1/vbridges", `{"vbridge":{"vbr_name":"vbr2","controller_id":"pfc1","domain_id":"(DEFAULT)"}}`},
	{schema.MethodPost, "/vtns/vtn1/vbridges", `{"vbridge":{"vbr_name":"vbr3","controller_id":"pfc1","domain_id":"(DEFAULT)"}}`},
	{schema.MethodPost, "/vtns/vtn1/vbridges/vbr1/interfaces", `{"interface":{"if_name":"if1","adminstatus":"enable"}}`},
}

func TestStore_Dispatch(t *testing.T) {
	reg, err := registry.NewBuiltin()
	require.NoError(t, err)

	tests := map[string]struct {
		step    step
		want    string
		wantErr error
		fails   bool
	}{
		"create vtn": {
			step: step{schema.MethodPost, "/vtns", `{"vtn":{"vtn_name":"vtn2","description":"second"}}`},
			want: `{"vtn":{"vtn_name":"vtn2","description":"second"}}`,
		},
		"create existing vtn": {
			step:    step{schema.MethodPost, "/vtns", `{"vtn":{"vtn_name":"vtn1"}}`},
			wantErr: ErrConflict,
		},
		"create under missing parent": {
			step:    step{schema.MethodPost, "/vtns/nope/vbridges", `{"vbridge":{"vbr_name":"vbr1"}}`},
			wantErr: ErrNotFound,
		},
		"read vbridge": {
			step: step{schema.MethodGet, "/vtns/vtn1/vbridges/vbr1.json", ""},
			want: `{"vbridge":{"vbr_name":"vbr1","controller_id":"pfc1","domain_id":"(DEFAULT)"}}`,
		},
		"read missing vbridge": {
			step:    step{schema.MethodGet, "/vtns/vtn1/vbridges/vbr9", ""},
			wantErr: ErrNotFound,
		},
		"update merges": {
			step: step{schema.MethodPut, "/vtns/vtn1/vbridges/vbr1", `{"vbridge":{"description":"edited"}}`},
			want: `{"vbridge":{"vbr_name":"vbr1","controller_id":"pfc1","domain_id":"(DEFAULT)","description":"edited"}}`,
		},
		"update missing": {
			step:    step{schema.MethodPut, "/vtns/vtn9", `{"vtn":{"description":"x"}}`},
			wantErr: ErrNotFound,
		},
		"put creates singular resource": {
			step: step{schema.MethodPut, "/vtns/vtn1/vbridges/vbr1/hostaddress", `{"ipaddress":{"ipaddr":"10.0.0.1","prefix":"24"}}`},
			want: `{"ipaddress":{"ipaddr":"10.0.0.1","prefix":"24"}}`,
		},
		"put singular under missing parent": {
			step:    step{schema.MethodPut, "/vtns/vtn1/vbridges/vbr9/hostaddress", `{"ipaddress":{"ipaddr":"10.0.0.1","prefix":"24"}}`},
			wantErr: ErrNotFound,
		},
		"portmap under interface": {
			step: step{schema.MethodPut, "/vtns/vtn1/vbridges/vbr1/interfaces/if1/portmap", `{"portmap":{"logical_port_id":"PP-0000-0000-0000-0001"}}`},
			want: `{"portmap":{"logical_port_id":"PP-0000-0000-0000-0001"}}`,
		},
		"list names": {
			step: step{schema.MethodGet, "/vtns/vtn1/vbridges", `{"op":"normal"}`},
			want: `{"vbridges":[{"vbr_name":"vbr1"},{"vbr_name":"vbr2"},{"vbr_name":"vbr3"}]}`,
		},
		"list defaults to names": {
			step: step{schema.MethodGet, "/vtns", ""},
			want: `{"vtns":[{"vtn_name":"vtn1"}]}`,
		},
		"list count": {
			step: step{schema.MethodGet, "/vtns/vtn1/vbridges", `{"op":"count"}`},
			want: `{"vbridges":{"count":3}}`,
		},
		"list after index with max": {
			step: step{schema.MethodGet, "/vtns/vtn1/vbridges", `{"index":"vbr1","max":"1"}`},
			want: `{"vbridges":[{"vbr_name":"vbr2"}]}`,
		},
		"list detail": {
			step: step{schema.MethodGet, "/vtns/vtn1/vbridges/vbr1/interfaces", `{"op":"detail"}`},
			want: `{"interfaces":[{"if_name":"if1","adminstatus":"enable"}]}`,
		},
		"list empty collection": {
			step: step{schema.MethodGet, "/vtns/vtn1/vrouters", ""},
			want: `{"vrouters":[]}`,
		},
		"list bad max": {
			step:  step{schema.MethodGet, "/vtns", `{"max":"many"}`},
			fails: true,
		},
		"delete missing": {
			step:    step{schema.MethodDelete, "/vtns/vtn1/vbridges/vbr9", ""},
			wantErr: ErrNotFound,
		},
	}

	for _, backend := range []string{storage.BackendGoMap, storage.BackendRedis} {
		for name, tt := range tests {
			t.Run(backend+"/"+name, func(t *testing.T) {
				s := newStore(t, backend)
				setup(t, s, reg, topology...)

				got, err := dispatch(t, s, reg, tt.step)
				if tt.fails {
					require.Error(t, err)
					return
				}
				if tt.wantErr != nil {
					assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
					return
				}
				require.NoError(t, err)
				raw, err := json.Marshal(got)
				require.NoError(t, err)
				assert.JSONEq(t, tt.want, string(raw))
			})
		}
	}
}

func TestStore_DeleteCascades(t *testing.T) {
	reg, err := registry.NewBuiltin()
	require.NoError(t, err)
	s := newStore(t, storage.BackendGoMap)
	setup(t, s, reg, topology...)
	setup(t, s, reg,
		step{schema.MethodPost, "/vtns", `{"vtn":{"vtn_name":"vtn10"}}`},
		step{schema.MethodPut, "/vtns/vtn1/flowfilters/in", ""},
	)

	_, err = dispatch(t, s, reg, step{schema.MethodDelete, "/vtns/vtn1", ""})
	require.NoError(t, err)

	for _, path := range []string{"/vtns/vtn1", "/vtns/vtn1/vbridges/vbr2", "/vtns/vtn1/vbridges/vbr1/interfaces/if1", "/vtns/vtn1/flowfilters/in"} {
		_, err := dispatch(t, s, reg, step{schema.MethodGet, path, ""})
		assert.True(t, errors.Is(err, ErrNotFound), "%s: %v", path, err)
	}
	// a sibling sharing the name prefix survives
	_, err = dispatch(t, s, reg, step{schema.MethodGet, "/vtns/vtn10", ""})
	require.NoError(t, err)

	catalog, err := s.catalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"vtns/vtn10"}, catalog)
}

func TestStore_NumericIDs(t *testing.T) {
	reg, err := registry.NewBuiltin()
	require.NoError(t, err)

	tests := map[string]struct {
		step    step
		want    string
		wantErr error
	}{
		"list in numeric order": {
			step: step{schema.MethodGet, "/flowlists/fl1/flowlistentries", ""},
			want: `{"flowlistentries":[{"seqnum":"2"},{"seqnum":"10"}]}`,
		},
		"list after numeric index": {
			step: step{schema.MethodGet, "/flowlists/fl1/flowlistentries", `{"index":"2"}`},
			want: `{"flowlistentries":[{"seqnum":"10"}]}`,
		},
		"index with leading zeros": {
			step: step{schema.MethodGet, "/flowlists/fl1/flowlistentries", `{"index":"002"}`},
			want: `{"flowlistentries":[{"seqnum":"10"}]}`,
		},
		"zero padded seqnum is a duplicate": {
			step:    step{schema.MethodPost, "/flowlists/fl1/flowlistentries", `{"flowlistentry":{"seqnum":"010"}}`},
			wantErr: ErrConflict,
		},
		"zero padded path names the same entry": {
			step: step{schema.MethodGet, "/flowlists/fl1/flowlistentries/010", ""},
			want: `{"flowlistentry":{"seqnum":10,"ipproto":6}}`,
		},
		"names keep text order": {
			step: step{schema.MethodGet, "/flowlists", ""},
			want: `{"flowlists":[{"fl_name":"fl1"},{"fl_name":"fl10"},{"fl_name":"fl2"}]}`,
		},
	}

	for _, backend := range []string{storage.BackendGoMap, storage.BackendRedis} {
		for name, tt := range tests {
			t.Run(backend+"/"+name, func(t *testing.T) {
				s := newStore(t, backend)
				setup(t, s, reg,
					step{schema.MethodPost, "/flowlists", `{"flowlist":{"fl_name":"fl1"}}`},
					step{schema.MethodPost, "/flowlists", `{"flowlist":{"fl_name":"fl2"}}`},
					step{schema.MethodPost, "/flowlists", `{"flowlist":{"fl_name":"fl10"}}`},
					step{schema.MethodPost, "/flowlists/fl1/flowlistentries", `{"flowlistentry":{"seqnum":10,"ipproto":6}}`},
					step{schema.MethodPost, "/flowlists/fl1/flowlistentries", `{"flowlistentry":{"seqnum":2}}`},
				)

				got, err := dispatch(t, s, reg, tt.step)
				if tt.wantErr != nil {
					assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
					return
				}
				require.NoError(t, err)
				raw, err := json.Marshal(got)
				require.NoError(t, err)
				assert.JSONEq(t, tt.want, string(raw))
			})
		}
	}
}

func TestStore_DerivedID(t *testing.T) {
	reg, err := registry.NewBuiltin()
	require.NoError(t, err)
	s := newStore(t, storage.BackendGoMap)
	setup(t, s, reg, topology...)
	setup(t, s, reg,
		step{schema.MethodPost, "/vtns/vtn1/vrouters", `{"vrouter":{"vrt_name":"vrt1","controller_id":"pfc1","domain_id":"(DEFAULT)"}}`},
		step{schema.MethodPost, "/vtns/vtn1/vrouters/vrt1/staticroutes", `{"staticroute":{"ipaddr":"10.1.0.0","prefix":16,"nexthopaddr":"10.0.0.254"}}`},
		step{schema.MethodPost, "/vtns/vtn1/vbridges/vbr1/vlanmaps", `{"vlanmap":{"logical_port_id":"PP-1","vlan_id":10}}`},
		step{schema.MethodPost, "/vtns/vtn1/vbridges/vbr1/vlanmaps", `{"vlanmap":{"no_vlan_id":"true"}}`},
	)

	got, err := dispatch(t, s, reg, step{schema.MethodGet, "/vtns/vtn1/vrouters/vrt1/staticroutes", ""})
	require.NoError(t, err)
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"staticroutes":[{"static_route_id":"10.1.0.0_10.0.0.254_16"}]}`, string(raw))

	got, err = dispatch(t, s, reg, step{schema.MethodGet, "/vtns/vtn1/vbridges/vbr1/vlanmaps", ""})
	require.NoError(t, err)
	raw, err = json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"vlanmaps":[{"vlanmap_id":"ANY-65535"},{"vlanmap_id":"PP-1-10"}]}`, string(raw))

	// the same route posted twice is one resource
	_, err = dispatch(t, s, reg, step{schema.MethodPost, "/vtns/vtn1/vrouters/vrt1/staticroutes",
		`{"staticroute":{"ipaddr":"10.1.0.0","prefix":16,"nexthopaddr":"10.0.0.254","nmg_name":"nmg1"}}`})
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)

	_, err = dispatch(t, s, reg, step{schema.MethodDelete, "/vtns/vtn1/vrouters/vrt1/staticroutes/10.1.0.0_10.0.0.254_16", ""})
	require.NoError(t, err)
}

const notesTable = `
resources:
  - type: note
    collection: notes
    singular: notes/{note_id}
    path:
      - {name: note_id, rule: {kind: max_length, length: 63}}
    methods:
      collection:
        POST:
          root: note
          fields:
            - {name: text, rule: {kind: max_length, length: 31}}
      singular:
        DELETE: {}
`

func TestStore_GeneratedID(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Load(strings.NewReader(notesTable)))
	reg.Seal()
	s := newStore(t, storage.BackendGoMap)

	for i := 0; i < 2; i++ {
		_, err := dispatch(t, s, reg, step{schema.MethodPost, "/notes", `{"note":{"text":"same"}}`})
		require.NoError(t, err)
	}

	got, err := dispatch(t, s, reg, step{schema.MethodGet, "/notes", ""})
	require.NoError(t, err)
	notes, ok := got["notes"].([]any)
	require.True(t, ok)
	require.Len(t, notes, 2)
	for _, n := range notes {
		id, _ := n.(map[string]any)["note_id"].(string)
		assert.NotEmpty(t, id)
		_, err := dispatch(t, s, reg, step{schema.MethodDelete, "/notes/" + id, ""})
		require.NoError(t, err)
	}

	catalog, err := s.catalog()
	require.NoError(t, err)
	assert.Empty(t, catalog)
}

func TestParentName(t *testing.T) {
	tests := map[string]struct {
		pattern string
		name    string
		want    string
	}{
		"top level":      {"vtns/{vtn_name}", "vtns/vtn1", ""},
		"nested":         {"vtns/{vtn_name}/vbridges/{vbr_name}", "vtns/vtn1/vbridges/vbr1", "vtns/vtn1"},
		"fixed leaf":     {"vtns/{vtn_name}/vbridges/{vbr_name}/hostaddress", "vtns/vtn1/vbridges/vbr1/hostaddress", "vtns/vtn1/vbridges/vbr1"},
		"flow filter":    {"vtns/{vtn_name}/flowfilters/{ff_type}", "vtns/vtn1/flowfilters/in", "vtns/vtn1"},
		"filter entry":   {"vtns/{vtn_name}/flowfilters/{ff_type}/flowfilterentries/{seqnum}", "vtns/vtn1/flowfilters/in/flowfilterentries/10", "vtns/vtn1/flowfilters/in"},
		"length differs": {"vtns/{vtn_name}", "vtns/vtn1/vbridges", ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, parentName(tt.pattern, tt.name))
		})
	}
}

func TestNew_NilStore(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}
