// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCA(t *testing.T) {
	ca, err := GenerateCA()
	require.NoError(t, err)

	assert.True(t, ca.Certificate.IsCA)
	assert.Equal(t, "passwordless development CA", ca.Certificate.Subject.CommonName)
	assert.NotZero(t, ca.Certificate.KeyUsage&x509.KeyUsageCertSign)
	assert.True(t, ca.Certificate.NotAfter.After(time.Now().AddDate(9, 0, 0)))
}

func TestGenerateServerCert(t *testing.T) {
	ca, err := GenerateCA()
	require.NoError(t, err)

	server, err := GenerateServerCert(ca, "auth.local", "10.0.0.5", "localhost", "")
	require.NoError(t, err)

	cert := server.Certificate
	assert.Equal(t, []string{"localhost", "auth.local"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 2)
	assert.Equal(t, "10.0.0.5", cert.IPAddresses[1].String())
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, cert.ExtKeyUsage)
	require.NoError(t, cert.CheckSignatureFrom(ca.Certificate))

	pool := x509.NewCertPool()
	pool.AddCert(ca.Certificate)
	for _, host := range []string{"localhost", "auth.local", "127.0.0.1", "10.0.0.5"} {
		_, err := cert.Verify(x509.VerifyOptions{DNSName: host, Roots: pool})
		assert.NoError(t, err, host)
	}
	_, err = cert.Verify(x509.VerifyOptions{DNSName: "evil.example", Roots: pool})
	assert.Error(t, err)
}

func TestSaveAndLoadCertificates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	ca, err := GenerateCA()
	require.NoError(t, err)
	server, err := GenerateServerCert(ca)
	require.NoError(t, err)

	require.NoError(t, SaveCertificates(dir, ca, server))

	for _, name := range []string{caCertFile, caKeyFile, serverCertFile, serverKeyFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
	}

	loadedCA, err := LoadCA(dir)
	require.NoError(t, err)
	assert.True(t, ca.Certificate.Equal(loadedCA.Certificate))
	assert.True(t, ca.PrivateKey.Equal(loadedCA.PrivateKey))

	loadedServer, err := LoadServerCert(dir)
	require.NoError(t, err)
	assert.True(t, server.Certificate.Equal(loadedServer.Certificate))
}

func TestSaveCertificates_OnlyCA(t *testing.T) {
	dir := t.TempDir()
	ca, err := GenerateCA()
	require.NoError(t, err)

	require.NoError(t, SaveCertificates(dir, ca, nil))

	_, err = os.Stat(filepath.Join(dir, serverCertFile))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadCA_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{"missing files", func(*testing.T, string) {}},
		{"garbage certificate", func(t *testing.T, dir string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, caCertFile), []byte("not pem"), 0o600))
			require.NoError(t, os.WriteFile(filepath.Join(dir, caKeyFile), []byte("not pem"), 0o600))
		}},
		{"key in certificate slot", func(t *testing.T, dir string) {
			ca, err := GenerateCA()
			require.NoError(t, err)
			require.NoError(t, SaveCertificates(dir, ca, nil))
			key, err := os.ReadFile(filepath.Join(dir, caKeyFile))
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(dir, caCertFile), key, 0o600))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)
			_, err := LoadCA(dir)
			assert.Error(t, err)
		})
	}
}

func TestEnsureServerTLS_GeneratesThenReuses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	now := time.Now()

	first, err := EnsureServerTLS(dir, now, "auth.local")
	require.NoError(t, err)
	require.Len(t, first.Certificates, 1)
	assert.Equal(t, uint16(cryptotls.VersionTLS12), first.MinVersion)

	second, err := EnsureServerTLS(dir, now, "auth.local")
	require.NoError(t, err)
	assert.True(t, first.Certificates[0].Leaf.Equal(second.Certificates[0].Leaf), "valid certificate is reused")
}

func TestEnsureServerTLS_RenewsNearExpiry(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	first, err := EnsureServerTLS(dir, now)
	require.NoError(t, err)
	ca, err := LoadCA(dir)
	require.NoError(t, err)

	later := first.Certificates[0].Leaf.NotAfter.Add(-time.Hour)
	renewed, err := EnsureServerTLS(dir, later)
	require.NoError(t, err)

	leaf := renewed.Certificates[0].Leaf
	assert.False(t, first.Certificates[0].Leaf.Equal(leaf))
	assert.NoError(t, leaf.CheckSignatureFrom(ca.Certificate), "renewal keeps the CA")
}

func TestEnsureServerTLS_ServesHTTPS(t *testing.T) {
	dir := t.TempDir()
	cfg, err := EnsureServerTLS(dir, time.Now())
	require.NoError(t, err)
	ca, err := LoadCA(dir)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	srv.TLS = cfg
	srv.StartTLS()
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(ca.Certificate)
	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &cryptotls.Config{RootCAs: pool, MinVersion: cryptotls.VersionTLS12},
	}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
