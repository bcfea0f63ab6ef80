// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Intel Corporation

// Package utils contains utility functions
package utils

import (
	"crypto/tls"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTLSFiles(t *testing.T) {
	tests := map[string]struct {
		in        string
		expectErr bool
		want      TLSFiles
	}{
		"no files are provided":                 {in: "", expectErr: true},
		"1 file is provided":                    {in: "a", expectErr: true},
		"2 files are provided":                  {in: "a:b", expectErr: true},
		"3 files are provided":                  {in: "a:b:c", want: TLSFiles{"a", "b", "c"}},
		"more files are provided then expected": {in: "a:b:c:d", expectErr: true},
		"empty CA cert file path":               {in: "a:b:", expectErr: true},
		"empty server key file path":            {in: "a::c", expectErr: true},
		"empty server cert file path":           {in: ":b:c", expectErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			files, err := ParseTLSFiles(tt.in)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}
}

var validCa = []byte(
	`-----BEGIN CERTIFICATE-----
MIICYzCCAg2gAwIBAgIUXcH7z871xc1nvqiV80yiCsmrZIkwDQYJKoZIhvcNAQEL
BQAwgYQxCzAJBgNVBAYTAlBMMRQwEgYDVQQIDAtNYXpvd2llY2tpZTERMA8GA1UE
BwwIV2Fyc3phd2ExDjAMBgNVBAoMBUludGVsMQwwCgYDVQQLDANPUEkxEjAQBgNV
BAMMCSoub3BpLmNvbTEaMBgGCSqGSIb3DQEJARYLb3BpQG9waS5jb20wIBcNMjMw
NTIyMTQyMDQyWhgPMjEyMzA0MjgxNDIwNDJaMIGEMQswCQYDVQQGEwJQTDEUMBIG
A1UECAwLTWF6b3dpZWNraWUxETAPBgNVBAcMCFdhcnN6YXdhMQ4wDAYDVQQKDAVJ
bnRlbDEMMAoGA1UECwwDT1BJMRIwEAYDVQQDDAkqLm9waS5jb20xGjAYBgkqhkiG
9w0BCQEWC29waUBvcGkuY29tMFwwDQYJKoZIhvcNAQEBBQADSwAwSAJBALhaOwyJ
DfVdUi7zlQiZNMPEEVHkdR6ougIND3c+UbWnR3oFyn7a7YOb+jnjWp18DZcqlVES
q5H0SBjyzd9dR2MCAwEAAaNTMFEwHQYDVR0OBBYEFN/LaFbmoEvAnCgJ4+xfQwK5
mdF2MB8GA1UdIwQYMBaAFN/LaFbmoEvAnCgJ4+xfQwK5mdF2MA8GA1UdEwEB/wQF
MAMBAf8wDQYJKoZIhvcNAQELBQADQQCnrnBr01nNKJYHodOqHq5mJWSCDNb9Fv8S
L8TMNwAmhE2vO1JRpFUgPIwaTnAPFLriYQpLW7JbHQos0wRS+vJZ
-----END CERTIFICATE-----
`)

func TestServerTLSConfig(t *testing.T) {
	tests := map[string]struct {
		expectErr   bool
		loadKeyErr  error
		readFileErr error
		validCaCert bool
	}{
		"failed to load key pair": {
			expectErr:   true,
			loadKeyErr:  errors.New("Key load failed"),
			validCaCert: true,
		},
		"failed to read file": {
			expectErr:   true,
			readFileErr: errors.New("Failed to read file"),
			validCaCert: true,
		},
		"invalid CA certificate": {
			expectErr: true,
		},
		"valid CA certificate": {
			validCaCert: true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			caCert := make([]byte, len(validCa))
			copy(caCert, validCa)
			if !tt.validCaCert {
				caCert[0]--
			}

			out, err := serverTLSConfig(TLSFiles{
				ServerCertPath: "a",
				ServerKeyPath:  "b",
				CaCertPath:     "c",
			}, func(_, _ string) (tls.Certificate, error) {
				return tls.Certificate{}, tt.loadKeyErr
			}, func(string) ([]byte, error) {
				return caCert, tt.readFileErr
			})

			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tls.RequireAndVerifyClientCert, out.ClientAuth)
			assert.Equal(t, uint16(tls.VersionTLS12), out.MinVersion)
			assert.NotNil(t, GRPCCredentials(out))
		})
	}
}
