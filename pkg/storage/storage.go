// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package storage opens the key value backend accepted configuration is kept in
package storage

import (
	"errors"
	"fmt"

	"github.com/philippgille/gokv"
	"github.com/philippgille/gokv/encoding"
	"github.com/philippgille/gokv/gomap"
	"github.com/philippgille/gokv/redis"
	log "github.com/sirupsen/logrus"
)

// Supported backends
const (
	BackendGoMap = "gomap"
	BackendRedis = "redis"
)

// ErrUnsupportedBackend is returned for unknown backend names
var ErrUnsupportedBackend = errors.New("unsupported backend")

// Storage wraps the gokv store selected by configuration
type Storage struct {
	backend string
	store   gokv.Store
}

// NewStore creates a new Storage instance based on the specified backend.
// Supported backends: "gomap" (in memory) and "redis" at address.
func NewStore(backend, address string) (*Storage, error) {
	var store gokv.Store
	var err error

	switch backend {
	case BackendRedis:
		options := redis.DefaultOptions
		if address != "" {
			options.Address = address
		}
		options.Codec = encoding.JSON
		store, err = redis.NewClient(options)
	case BackendGoMap:
		options := gomap.DefaultOptions
		options.Codec = encoding.JSON
		store = gomap.NewStore(options)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%s backend at %s: %w", backend, address, err)
	}

	log.Printf("using %s storage backend", backend)
	return &Storage{backend: backend, store: store}, nil
}

// Backend returns the name of the selected backend
func (s *Storage) Backend() string {
	return s.backend
}

// GetClient returns the underlying database client.
func (s *Storage) GetClient() gokv.Store {
	return s.store
}

// Close releases any resources held by the store.
func (s *Storage) Close() error {
	return s.store.Close()
}
