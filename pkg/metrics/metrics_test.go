// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
	"github.com/opiproject/opi-vtn-coordinator/pkg/validator"
)

func TestCollector_Observe(t *testing.T) {
	c := NewCollector()

	c.Observe("vtn", schema.MethodPost, validator.Result{Valid: true, State: validator.StateAccept}, time.Millisecond)
	c.Observe("vtn", schema.MethodPost, validator.Result{Valid: true, State: validator.StateAccept}, time.Millisecond)
	c.Observe("vtn", schema.MethodPost, validator.Result{
		State: validator.StateReject, Marker: validator.MarkerValidationError, InvalidField: "vtn_name",
	}, time.Millisecond)
	c.Observe("vtn", schema.MethodPut, validator.Result{
		State: validator.StateReject, Marker: validator.MarkerIncorrectMethodInvocation,
	}, time.Millisecond)

	tests := map[string]struct {
		labels []string
		want   float64
	}{
		"accepted":  {[]string{"vtn", "POST", "accept"}, 2},
		"rejected":  {[]string{"vtn", "POST", "reject"}, 1},
		"method":    {[]string{"vtn", "PUT", "method"}, 1},
		"untouched": {[]string{"vbridge", "GET", "accept"}, 0},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, testutil.ToFloat64(c.validation.WithLabelValues(tt.labels...)))
		})
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(c.rejected.WithLabelValues("vtn", "vtn_name")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.Observe("flowlist", schema.MethodDelete, validator.Result{Valid: true}, time.Microsecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body),
		`vtn_validation_total{method="DELETE",outcome="accept",resource="flowlist"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}
