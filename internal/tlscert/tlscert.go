// Package tlscert supplies server certificates for the metrics listener,
// either from operator-provided files or from a self-signed pair generated
// on first start.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
)

// Mode selects where the listener certificate comes from.
type Mode string

const (
	ModeFile       Mode = "file"
	ModeSelfSigned Mode = "selfsigned"
)

// MinTLSVersion is the floor for every listener this package configures.
const MinTLSVersion = tls.VersionTLS13

// Config describes one certificate source.
type Config struct {
	Mode Mode

	// File mode.
	CertFile string
	KeyFile  string

	// Self-signed mode. Hosts defaults to the loopback names.
	CertDir string
	Hosts   []string
}

// Manager hands out a tls.Config for an http.Server.
type Manager interface {
	TLSConfig() (*tls.Config, error)
	Description() string
}

// NewManager builds the manager matching cfg.Mode.
func NewManager(cfg Config, logger *slog.Logger) (Manager, error) {
	switch cfg.Mode {
	case ModeFile:
		return newFileManager(cfg, logger)
	case ModeSelfSigned:
		return newSelfSignedManager(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported TLS certificate mode %q (valid modes: file, selfsigned)", cfg.Mode)
	}
}
