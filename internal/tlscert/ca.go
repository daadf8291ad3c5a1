// Package tlscert issues on-the-fly, CA-signed leaf certificates keyed
// by SNI so the TLS interception proxy can terminate a client
// connection to any upstream host without that host's real
// certificate. A single self-signed root CA is generated once (or
// loaded from disk) and used to sign every leaf.
package tlscert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// CA holds the root certificate and key used to sign per-domain leaf
// certificates.
type CA struct {
	cert    *x509.Certificate
	key     *rsa.PrivateKey
	certPEM []byte
}

// LoadOrGenerate loads an existing CA from certPath/keyPath, or
// generates and persists a new 10-year root CA if either is missing —
// mirroring the reference implementation's load-or-generate behavior
// so a restart doesn't invalidate every client's trust store entry.
func LoadOrGenerate(certPath, keyPath string) (*CA, error) {
	if _, err := os.Stat(certPath); err == nil {
		if _, err := os.Stat(keyPath); err == nil {
			return load(certPath, keyPath)
		}
	}
	return generate(certPath, keyPath)
}

func load(certPath, keyPath string) (*CA, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("tlscert: read ca cert: %w", err)
	}
	keyPEMBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("tlscert: read ca key: %w", err)
	}
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("tlscert: invalid ca cert PEM at %s", certPath)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("tlscert: parse ca cert: %w", err)
	}
	keyBlock, _ := pem.Decode(keyPEMBytes)
	if keyBlock == nil {
		return nil, fmt.Errorf("tlscert: invalid ca key PEM at %s", keyPath)
	}
	key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("tlscert: parse ca key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("tlscert: ca key is not RSA")
	}
	return &CA{cert: cert, key: rsaKey, certPEM: certPEM}, nil
}

func generate(certPath, keyPath string) (*CA, error) {
	key, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		return nil, fmt.Errorf("tlscert: generate ca key: %w", err)
	}

	subject := pkix.Name{
		CommonName:         "CodeGate CA",
		Organization:       []string{"CodeGate"},
		OrganizationalUnit: []string{"CodeGate"},
		Country:            []string{"UK"},
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("tlscert: generate serial: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		Issuer:                subject,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	derBytes, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("tlscert: sign ca cert: %w", err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("tlscert: parse generated ca cert: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("tlscert: marshal ca key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	if err := os.MkdirAll(filepath.Dir(certPath), 0o755); err != nil {
		return nil, fmt.Errorf("tlscert: create certs dir: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return nil, fmt.Errorf("tlscert: write ca cert: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("tlscert: write ca key: %w", err)
	}

	return &CA{cert: cert, key: key, certPEM: certPEM}, nil
}

// CertPEM returns the root CA certificate in PEM form, for the
// operator to install into their OS/browser trust store.
func (c *CA) CertPEM() []byte { return c.certPEM }

// issueLeaf signs a fresh, short-lived server certificate for domain.
func (c *CA) issueLeaf(domain string) (*tls.Certificate, time.Time, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("tlscert: generate leaf key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("tlscert: generate serial: %w", err)
	}
	notAfter := time.Now().AddDate(0, 0, 30)
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: domain, Organization: []string{"CodeGate Generated"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{domain},
	}
	derBytes, err := x509.CreateCertificate(rand.Reader, tmpl, c.cert, &key.PublicKey, c.key)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("tlscert: sign leaf cert for %s: %w", domain, err)
	}
	leaf, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, time.Time{}, err
	}
	tlsCert := &tls.Certificate{
		Certificate: [][]byte{derBytes, c.cert.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	return tlsCert, notAfter, nil
}
