package tlscert

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerRejectsUnknownMode(t *testing.T) {
	_, err := NewManager(Config{Mode: "acme"}, slog.Default())
	require.Error(t, err)
	assert.ErrorContains(t, err, `unsupported TLS certificate mode "acme"`)
}

func TestSelfSignedGeneratesAndReuses(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Mode: ModeSelfSigned, CertDir: dir}

	manager, err := NewManager(cfg, slog.Default())
	require.NoError(t, err)

	tlsConfig, err := manager.TLSConfig()
	require.NoError(t, err)
	require.Len(t, tlsConfig.Certificates, 1)
	assert.EqualValues(t, MinTLSVersion, tlsConfig.MinVersion)

	firstCert, err := os.ReadFile(filepath.Join(dir, "metrics.crt"))
	require.NoError(t, err)

	// A second manager over the same directory must reuse the pair.
	_, err = NewManager(cfg, slog.Default())
	require.NoError(t, err)
	secondCert, err := os.ReadFile(filepath.Join(dir, "metrics.crt"))
	require.NoError(t, err)
	assert.Equal(t, firstCert, secondCert)
}

func TestSelfSignedRegeneratesOnHostChange(t *testing.T) {
	dir := t.TempDir()

	_, err := NewManager(Config{Mode: ModeSelfSigned, CertDir: dir}, slog.Default())
	require.NoError(t, err)
	firstCert, err := os.ReadFile(filepath.Join(dir, "metrics.crt"))
	require.NoError(t, err)

	_, err = NewManager(Config{
		Mode:    ModeSelfSigned,
		CertDir: dir,
		Hosts:   []string{"metrics.internal"},
	}, slog.Default())
	require.NoError(t, err)
	secondCert, err := os.ReadFile(filepath.Join(dir, "metrics.crt"))
	require.NoError(t, err)
	assert.NotEqual(t, firstCert, secondCert, "a host change must invalidate the cached pair")
}

func TestFileModeValidation(t *testing.T) {
	dir := t.TempDir()

	// Generate a valid pair to point at.
	_, err := NewManager(Config{Mode: ModeSelfSigned, CertDir: dir}, slog.Default())
	require.NoError(t, err)
	certFile := filepath.Join(dir, "metrics.crt")
	keyFile := filepath.Join(dir, "metrics.key")

	manager, err := NewManager(Config{Mode: ModeFile, CertFile: certFile, KeyFile: keyFile}, slog.Default())
	require.NoError(t, err)
	tlsConfig, err := manager.TLSConfig()
	require.NoError(t, err)
	require.NotNil(t, tlsConfig.GetCertificate)
	cert, err := tlsConfig.GetCertificate(nil)
	require.NoError(t, err)
	assert.NotNil(t, cert)

	_, err = NewManager(Config{Mode: ModeFile, KeyFile: keyFile}, slog.Default())
	assert.ErrorContains(t, err, "cert_file is required")

	_, err = NewManager(Config{Mode: ModeFile, CertFile: certFile}, slog.Default())
	assert.ErrorContains(t, err, "key_file is required")

	require.NoError(t, os.Chmod(keyFile, 0644))
	_, err = NewManager(Config{Mode: ModeFile, CertFile: certFile, KeyFile: keyFile}, slog.Default())
	assert.ErrorContains(t, err, "insecure permissions")
}
