// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

// Package main is the main package of the application
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/opiproject/opi-vtn-coordinator/pkg/config"
	"github.com/opiproject/opi-vtn-coordinator/pkg/configstore"
	"github.com/opiproject/opi-vtn-coordinator/pkg/metrics"
	"github.com/opiproject/opi-vtn-coordinator/pkg/registry"
	"github.com/opiproject/opi-vtn-coordinator/pkg/rest"
	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
	"github.com/opiproject/opi-vtn-coordinator/pkg/service"
	"github.com/opiproject/opi-vtn-coordinator/pkg/storage"
	"github.com/opiproject/opi-vtn-coordinator/pkg/utils"
	"github.com/opiproject/opi-vtn-coordinator/pkg/validator"
)

const version = "v0.1.0"

func main() {
	command := &cobra.Command{
		Use:          "opi-vtn-coordinator",
		Short:        "VTN coordinator validating and storing virtual tenant network requests",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Initcfg(); err != nil {
				return err
			}
			if err := config.ValidateConfig(); err != nil {
				return err
			}
			if err := config.ApplyLogLevel(config.GetConfig().LogLevel); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, config.GetConfig())
		},
	}
	if err := config.BindFlags(command); err != nil {
		log.Fatalf("failed to bind flags: %v", err)
	}
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Tracing.Enabled {
		tp, err := utils.InitTracerProvider(ctx, cfg.Tracing.Service, version)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Errorf("Tracer Provider Shutdown: %v", err)
			}
		}()
	}

	reg, err := newRegistry(cfg.SchemaFile)
	if err != nil {
		return err
	}
	log.Printf("serving %d resource types", len(reg.Types()))

	store, err := storage.NewStore(cfg.Database, cfg.DBAddress)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("closing %s store: %v", store.Backend(), err)
		}
	}()

	collector := metrics.NewCollector()
	v := validator.New(validator.WithObserver(collector))

	var tlsConfig *tls.Config
	var grpcOpts []grpc.ServerOption
	if cfg.TLSFiles != "" {
		files, err := utils.ParseTLSFiles(cfg.TLSFiles)
		if err != nil {
			return err
		}
		if tlsConfig, err = utils.ServerTLSConfig(files); err != nil {
			return err
		}
		grpcOpts = append(grpcOpts, utils.GRPCCredentials(tlsConfig))
		log.Println("TLS files are provided. Servers require mutual TLS")
	}

	g, ctx := errgroup.WithContext(ctx)

	grpcServer := service.NewGRPCServer(service.NewServer(reg, v), log.StandardLogger(), grpcOpts...)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	g.Go(func() error { return serveGRPC(ctx, grpcServer, healthServer, cfg.GRPCPort) })

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           rest.NewServer(reg, v, configstore.New(store.GetClient()), collector.Handler()).Handler(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error { return serveHTTP(ctx, httpServer) })

	return g.Wait()
}

// newRegistry registers the builtin VTN table plus an optional extra table
func newRegistry(schemaFile string) (*registry.Registry, error) {
	reg := registry.New()
	builtin, err := schema.Builtin()
	if err != nil {
		return nil, err
	}
	if err := reg.RegisterAll(builtin); err != nil {
		return nil, err
	}
	if schemaFile != "" {
		f, err := os.Open(schemaFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := reg.Load(f); err != nil {
			return nil, fmt.Errorf("%s: %w", schemaFile, err)
		}
		log.Printf("loaded extra schema table %s", schemaFile)
	}
	reg.Seal()
	return reg, nil
}

func serveGRPC(ctx context.Context, s *grpc.Server, h *health.Server, port uint16) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		h.Shutdown()
		s.GracefulStop()
	}()
	log.Printf("gRPC server listening at %v", lis.Addr())
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, s *http.Server) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP server shutdown: %v", err)
		}
	}()
	log.Printf("HTTP server listening at %v", s.Addr)
	var err error
	if s.TLSConfig != nil {
		err = s.ListenAndServeTLS("", "")
	} else {
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
	return nil
}
