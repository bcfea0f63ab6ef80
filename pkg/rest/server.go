// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package rest serves the VTN resources over HTTP. Every request is resolved
// to a resource form, validated and, once accepted, handed to the dispatcher.
package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-vtn-coordinator/pkg/configstore"
	"github.com/opiproject/opi-vtn-coordinator/pkg/registry"
	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
	"github.com/opiproject/opi-vtn-coordinator/pkg/utils"
	"github.com/opiproject/opi-vtn-coordinator/pkg/validator"
)

// Prefix is the path all VTN resources are served under
const Prefix = "/vtn-webapi"

// RequestIDHeader carries the id of a request in both directions
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

// Dispatcher applies accepted requests
type Dispatcher interface {
	Dispatch(ctx context.Context, target registry.Target, method schema.Method, body map[string]any) (map[string]any, error)
}

// Server routes VTN requests through validation to a dispatcher
type Server struct {
	reg        *registry.Registry
	validator  *validator.Validator
	dispatcher Dispatcher
	engine     *gin.Engine
}

// NewServer builds the gin engine. metrics, when not nil, is served at /metrics.
func NewServer(reg *registry.Registry, v *validator.Validator, d Dispatcher, metrics http.Handler) *Server {
	if reg == nil || v == nil || d == nil {
		log.Panic("nil for registry, validator or dispatcher is not allowed")
	}
	s := &Server{reg: reg, validator: v, dispatcher: d, engine: gin.New()}

	s.engine.Use(requestID(), accessLog(), gin.CustomRecovery(recovered))
	s.engine.Any(Prefix+"/*path", s.handle)
	s.engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
	return s
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handle(c *gin.Context) {
	path := c.Param("path")
	target, err := s.reg.Resolve(path)
	if err != nil {
		abort(c, http.StatusNotFound, "no such resource: "+strings.TrimPrefix(path, "/"))
		return
	}

	method, err := schema.ParseMethod(c.Request.Method)
	if err != nil {
		abort(c, http.StatusMethodNotAllowed, err.Error())
		return
	}

	body, err := requestBody(c, method)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	res := s.validator.Validate(c.Request.Context(), target.Schema, target.List, validator.Request{
		Method: method,
		Params: target.Params,
		Body:   body,
	})
	c.Header("X-Vtn-Stage", res.Stage.String())
	if !res.Valid {
		rejected(c, target, res)
		return
	}

	out, err := s.dispatcher.Dispatch(c.Request.Context(), target, method, res.NormalizedBody)
	switch {
	case errors.Is(err, configstore.ErrNotFound):
		abort(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, configstore.ErrConflict):
		abort(c, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.WithField(requestIDKey, c.GetString(requestIDKey)).Errorf("dispatch failed: %v", err)
		abort(c, http.StatusInternalServerError, "internal error")
		return
	}

	switch method {
	case schema.MethodPost:
		c.JSON(http.StatusCreated, out)
	case schema.MethodDelete:
		c.Status(http.StatusNoContent)
	default:
		c.JSON(http.StatusOK, out)
	}
}

// requestBody reads the JSON body of POST and PUT requests. GET and DELETE
// carry their keys in the query string, as the VTN API does.
func requestBody(c *gin.Context, method schema.Method) (map[string]any, error) {
	if method == schema.MethodGet || method == schema.MethodDelete {
		query := c.Request.URL.Query()
		if len(query) == 0 {
			return nil, nil
		}
		body := make(map[string]any, len(query))
		for k, v := range query {
			body[k] = v[0]
		}
		return body, nil
	}
	return utils.DecodeObject(c.Request.Body)
}

func rejected(c *gin.Context, target registry.Target, res validator.Result) {
	if res.Marker == validator.MarkerIncorrectMethodInvocation {
		var allowed []string
		if form := target.Schema.Form(target.List); form != nil {
			for _, m := range form.SupportedMethods() {
				allowed = append(allowed, string(m))
			}
		}
		c.Header("Allow", strings.Join(allowed, ", "))
		abortMarker(c, http.StatusMethodNotAllowed, res.Marker, "method not supported on this resource")
		return
	}
	msg := "invalid request"
	if res.InvalidField != "" {
		msg = "invalid field: " + res.InvalidField
	}
	abortMarker(c, http.StatusBadRequest, res.Marker, msg)
}

type errorBody struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Marker string `json:"marker,omitempty"`
}

func abort(c *gin.Context, code int, msg string) {
	abortMarker(c, code, validator.MarkerNone, msg)
}

func abortMarker(c *gin.Context, code int, marker validator.Marker, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": errorBody{Code: code, Msg: msg, Marker: string(marker)}})
}

func recovered(c *gin.Context, err any) {
	log.WithField(requestIDKey, c.GetString(requestIDKey)).Errorf("recovered from panic: %v", err)
	abort(c, http.StatusInternalServerError, "internal error")
}

// requestID reuses the caller's request id or generates one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			requestIDKey: c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
		}).Info("request served")
	}
}
