package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const selfSignedValidity = 365 * 24 * time.Hour

type selfSignedManager struct {
	certPath string
	keyPath  string
}

func newSelfSignedManager(cfg Config, logger *slog.Logger) (Manager, error) {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1", "::1"}
	}
	if err := os.MkdirAll(cfg.CertDir, 0700); err != nil {
		return nil, fmt.Errorf("create certificate directory: %w", err)
	}
	certPath := filepath.Join(cfg.CertDir, "metrics.crt")
	keyPath := filepath.Join(cfg.CertDir, "metrics.key")

	reusable, err := reusablePair(certPath, keyPath, hosts)
	if err != nil {
		return nil, err
	}
	if !reusable {
		logger.Info("generating self-signed certificate",
			slog.String("cert_path", certPath),
			slog.Any("hosts", hosts),
		)
		if err := generatePair(certPath, keyPath, hosts); err != nil {
			return nil, err
		}
	}
	return &selfSignedManager{certPath: certPath, keyPath: keyPath}, nil
}

func (m *selfSignedManager) TLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(m.certPath, m.keyPath)
	if err != nil {
		return nil, fmt.Errorf("load self-signed certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   MinTLSVersion,
		Certificates: []tls.Certificate{cert},
	}, nil
}

func (m *selfSignedManager) Description() string {
	return fmt.Sprintf("self-signed (cert=%s)", m.certPath)
}

// reusablePair reports whether an existing pair is loadable, unexpired, and
// covers exactly the requested hosts.
func reusablePair(certPath, keyPath string, hosts []string) (bool, error) {
	certPEM, err := os.ReadFile(certPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(keyPath); err != nil {
		return false, nil
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return false, fmt.Errorf("invalid certificate PEM in %s", certPath)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false, fmt.Errorf("parse existing certificate: %w", err)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return false, nil
	}
	if !hostsMatch(cert, hosts) {
		return false, nil
	}
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return false, nil
	}
	return true, nil
}

func hostsMatch(cert *x509.Certificate, hosts []string) bool {
	wantDNS := make(map[string]struct{})
	wantIPs := make(map[string]struct{})
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			wantIPs[ip.String()] = struct{}{}
		} else {
			wantDNS[host] = struct{}{}
		}
	}
	if len(wantDNS) != len(cert.DNSNames) || len(wantIPs) != len(cert.IPAddresses) {
		return false
	}
	for _, name := range cert.DNSNames {
		if _, ok := wantDNS[name]; !ok {
			return false
		}
	}
	for _, ip := range cert.IPAddresses {
		if _, ok := wantIPs[ip.String()]; !ok {
			return false
		}
	}
	return true
}

func generatePair(certPath, keyPath string, hosts []string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial number: %w", err)
	}
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "grist-mcp-server metrics"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(selfSignedValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}
