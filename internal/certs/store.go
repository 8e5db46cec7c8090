// Package certs reads the certificates the proxy serves and talks to the
// certificate manager collaborator for renewals and revocations.
package certs

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/halcyonops/vigil/internal/models"
)

// Store scans a directory of PEM certificates, one leaf per served domain
// (the layout certbot and Caddy both produce).
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore creates a certificate store over dir.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Scan walks the store directory and returns one entity per parseable leaf
// certificate. Unparseable files are logged and skipped; they are a local
// hygiene problem, not an inventory failure.
func (s *Store) Scan(ctx context.Context) ([]models.Entity, error) {
	if _, err := os.Stat(s.dir); err != nil {
		return nil, fmt.Errorf("certificate directory %s: %w", s.dir, err)
	}

	var entities []models.Entity
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isPEMFile(path) {
			return nil
		}

		cert, err := s.readLeaf(path)
		if err != nil {
			s.logger.Warn().Str("path", path).Err(err).Msg("Skipping unreadable certificate")
			return nil
		}

		domain := cert.Subject.CommonName
		if domain == "" && len(cert.DNSNames) > 0 {
			domain = cert.DNSNames[0]
		}
		if domain == "" {
			domain = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		entities = append(entities, models.Entity{
			Kind:  models.KindCertificate,
			ID:    domain,
			Name:  domain,
			State: "issued",
			Metadata: map[string]string{
				models.MetaNotAfter: cert.NotAfter.UTC().Format(time.RFC3339),
				models.MetaIssuer:   cert.Issuer.CommonName,
				models.MetaSubject:  cert.Subject.CommonName,
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan certificates in %s: %w", s.dir, err)
	}

	return entities, nil
}

func (s *Store) readLeaf(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// The first CERTIFICATE block in a fullchain file is the leaf.
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		return x509.ParseCertificate(block.Bytes)
	}
	return nil, fmt.Errorf("no certificate block found")
}

func isPEMFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pem", ".crt", ".cer":
		return true
	default:
		return false
	}
}
