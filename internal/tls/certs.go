// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package tls generates and loads the self-signed certificates used when
// serving HTTPS in development.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// File names inside the certs directory.
const (
	caCertFile     = "root-ca.crt"
	caKeyFile      = "root-ca.key"
	serverCertFile = "server.crt"
	serverKeyFile  = "server.key"
)

// renewBefore regenerates the server certificate this long before expiry.
const renewBefore = 7 * 24 * time.Hour

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a server certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}
	return serial, nil
}

// GenerateCA creates a development root CA valid for ten years.
func GenerateCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"passwordless"},
			CommonName:   "passwordless development CA",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert creates a one-year server certificate signed by ca.
// Hosts may be DNS names or IP addresses; localhost and 127.0.0.1 are
// always included.
func GenerateServerCert(ca *CA, hosts ...string) (*ServerCert, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate server key: %w", err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	dnsNames := []string{"localhost"}
	ips := []net.IP{net.ParseIP("127.0.0.1")}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else if h != "" && h != "localhost" {
			dnsNames = append(dnsNames, h)
		}
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"passwordless"},
			CommonName:   dnsNames[len(dnsNames)-1],
		},
		NotBefore:   now.Add(-time.Minute),
		NotAfter:    now.AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create server certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server certificate: %w", err)
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// SaveCertificates writes the CA and, when given, the server certificate
// to certsDir with owner-only permissions.
func SaveCertificates(certsDir string, ca *CA, server *ServerCert) error {
	if err := os.MkdirAll(certsDir, 0o700); err != nil {
		return fmt.Errorf("failed to create certs directory: %w", err)
	}
	if err := writePair(certsDir, caCertFile, caKeyFile, ca.Certificate, ca.PrivateKey); err != nil {
		return fmt.Errorf("failed to save CA: %w", err)
	}
	if server != nil {
		if err := writePair(certsDir, serverCertFile, serverKeyFile, server.Certificate, server.PrivateKey); err != nil {
			return fmt.Errorf("failed to save server certificate: %w", err)
		}
	}
	return nil
}

// LoadCA loads the CA from certsDir.
func LoadCA(certsDir string) (*CA, error) {
	cert, key, err := readPair(certsDir, caCertFile, caKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA: %w", err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// LoadServerCert loads the server certificate from certsDir.
func LoadServerCert(certsDir string) (*ServerCert, error) {
	cert, key, err := readPair(certsDir, serverCertFile, serverKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// EnsureServerTLS returns a server TLS config backed by the certificates in
// certsDir. Missing or soon-expiring certificates are generated; an
// existing CA is reused so clients that trust it keep working.
func EnsureServerTLS(certsDir string, now time.Time, hosts ...string) (*cryptotls.Config, error) {
	ca, err := LoadCA(certsDir)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		if ca, err = GenerateCA(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	server, err := LoadServerCert(certsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if server == nil || !usable(server, ca, now) {
		if server, err = GenerateServerCert(ca, hosts...); err != nil {
			return nil, err
		}
		if err := SaveCertificates(certsDir, ca, server); err != nil {
			return nil, err
		}
	}

	return &cryptotls.Config{
		MinVersion: cryptotls.VersionTLS12,
		Certificates: []cryptotls.Certificate{{
			Certificate: [][]byte{server.Certificate.Raw, ca.Certificate.Raw},
			PrivateKey:  server.PrivateKey,
			Leaf:        server.Certificate,
		}},
	}, nil
}

// usable reports whether server chains to ca and stays valid past renewBefore.
func usable(server *ServerCert, ca *CA, now time.Time) bool {
	if now.Add(renewBefore).After(server.Certificate.NotAfter) {
		return false
	}
	return server.Certificate.CheckSignatureFrom(ca.Certificate) == nil
}

func writePair(dir, certName, keyName string, cert *x509.Certificate, key *ecdsa.PrivateKey) error {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := writePEM(filepath.Join(dir, certName), "CERTIFICATE", cert.Raw); err != nil {
		return err
	}
	return writePEM(filepath.Join(dir, keyName), "EC PRIVATE KEY", keyDER)
}

func writePEM(path, blockType string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(filepath.Clean(path), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readPair(dir, certName, keyName string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certDER, err := readPEM(filepath.Join(dir, certName), "CERTIFICATE")
	if err != nil {
		return nil, nil, err
	}
	keyDER, err := readPEM(filepath.Join(dir, keyName), "EC PRIVATE KEY")
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", certName, err)
	}
	key, err := x509.ParseECPrivateKey(keyDER)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", keyName, err)
	}
	return cert, key, nil
}

func readPEM(path, blockType string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != blockType {
		return nil, fmt.Errorf("failed to decode %s: no %s block", filepath.Base(path), blockType)
	}
	return block.Bytes, nil
}
