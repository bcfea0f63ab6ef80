// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

package storage

import (
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	live := miniredis.RunT(t)
	dead := miniredis.NewMiniRedis()
	require.NoError(t, dead.Start())
	deadAddr := dead.Addr()
	dead.Close()

	tests := map[string]struct {
		backend string
		address string
		wantErr error
		fails   bool
	}{
		"in memory":         {backend: BackendGoMap},
		"redis":             {backend: BackendRedis, address: live.Addr()},
		"unreachable redis": {backend: BackendRedis, address: deadAddr, fails: true},
		"unknown backend":   {backend: "badger", wantErr: ErrUnsupportedBackend},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := NewStore(tt.backend, tt.address)
			switch {
			case tt.fails:
				assert.Error(t, err)
				return
			case tt.wantErr != nil:
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			defer func() { assert.NoError(t, s.Close()) }()
			assert.Equal(t, tt.backend, s.Backend())

			client := s.GetClient()
			require.NoError(t, client.Set("vtns/vtn1", map[string]string{"vtn_name": "vtn1"}))
			var got map[string]string
			found, err := client.Get("vtns/vtn1", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "vtn1", got["vtn_name"])

			require.NoError(t, client.Delete("vtns/vtn1"))
			found, err = client.Get("vtns/vtn1", &got)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}
