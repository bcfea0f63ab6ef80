// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Intel Corporation

// Package utils contains utility functions
package utils

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// TLSFiles names the PEM files that enable mutual TLS on both listeners
type TLSFiles struct {
	ServerCertPath string
	ServerKeyPath  string
	CaCertPath     string
}

// ParseTLSFiles parses "<server cert>:<server key>:<ca cert>"
func ParseTLSFiles(tlsFiles string) (TLSFiles, error) {
	files := strings.Split(tlsFiles, ":")
	if len(files) != 3 {
		return TLSFiles{}, errors.New("wrong number of path entries provided, " +
			"expect <server cert>:<server key>:<ca cert> separated by `:`")
	}

	const emptyPathErr = "empty %s path is not allowed"
	for i, what := range []string{"server cert", "server key", "CA cert"} {
		if files[i] == "" {
			return TLSFiles{}, fmt.Errorf(emptyPathErr, what)
		}
	}
	return TLSFiles{ServerCertPath: files[0], ServerKeyPath: files[1], CaCertPath: files[2]}, nil
}

// ServerTLSConfig loads the files into a config requiring client certificates
// signed by the CA. The same config serves the gRPC and the REST listener.
func ServerTLSConfig(files TLSFiles) (*tls.Config, error) {
	return serverTLSConfig(files, tls.LoadX509KeyPair, os.ReadFile)
}

// GRPCCredentials wraps a server TLS config as a gRPC server option
func GRPCCredentials(c *tls.Config) grpc.ServerOption {
	return grpc.Creds(credentials.NewTLS(c))
}

func serverTLSConfig(files TLSFiles,
	loadX509KeyPair func(string, string) (tls.Certificate, error),
	readFile func(string) ([]byte, error),
) (*tls.Config, error) {
	serverCert, err := loadX509KeyPair(files.ServerCertPath, files.ServerKeyPath)
	if err != nil {
		return nil, err
	}

	c := &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
		ClientCAs: x509.NewCertPool(),
	}

	log.Println("Loading client ca certificate:", files.CaCertPath)
	clientCaCert, err := readFile(files.CaCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %v: %w", files.CaCertPath, err)
	}
	if !c.ClientCAs.AppendCertsFromPEM(clientCaCert) {
		return nil, fmt.Errorf("failed to add client CA's certificate: %v", files.CaCertPath)
	}
	return c, nil
}
