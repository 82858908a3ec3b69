// SPDX-License-Identifier: MIT

package tls

import (
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSigned(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "playbackd.crt")
	keyPath := filepath.Join(dir, "playbackd.key")

	require.NoError(t, GenerateSelfSigned(certPath, keyPath, []net.IP{net.ParseIP("192.168.1.10")}))

	pemBytes, err := os.ReadFile(certPath)
	require.NoError(t, err)
	block, _ := pem.Decode(pemBytes)
	require.NotNil(t, block)
	require.Equal(t, "CERTIFICATE", block.Type)

	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "playbackd", cert.Subject.CommonName)
	assert.Contains(t, cert.DNSNames, "localhost")

	found := false
	for _, ip := range cert.IPAddresses {
		if ip.Equal(net.ParseIP("192.168.1.10")) {
			found = true
		}
	}
	assert.True(t, found, "additional SAN missing")

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureCertificatesIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CertPath: filepath.Join(dir, "playbackd.crt"),
		KeyPath:  filepath.Join(dir, "playbackd.key"),
		Logger:   zerolog.Nop(),
	}

	certPath, keyPath, err := EnsureCertificates(cfg)
	require.NoError(t, err)

	first, err := os.ReadFile(certPath)
	require.NoError(t, err)

	// second call reuses the existing pair
	_, _, err = EnsureCertificates(cfg)
	require.NoError(t, err)
	second, err := os.ReadFile(certPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = os.Stat(keyPath)
	assert.NoError(t, err)
}

func TestEnsureCertificatesRegeneratesIncompletePair(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CertPath: filepath.Join(dir, "playbackd.crt"),
		KeyPath:  filepath.Join(dir, "playbackd.key"),
		Logger:   zerolog.Nop(),
	}

	_, _, err := EnsureCertificates(cfg)
	require.NoError(t, err)
	require.NoError(t, os.Remove(cfg.KeyPath))

	_, _, err = EnsureCertificates(cfg)
	require.NoError(t, err)
	_, err = os.Stat(cfg.KeyPath)
	assert.NoError(t, err)
}

func TestEnsureCertificatesRequiresPaths(t *testing.T) {
	_, _, err := EnsureCertificates(Config{Logger: zerolog.Nop()})
	assert.Error(t, err)
}
