// Package tlstest generates throwaway mTLS material for tests.
package tlstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// Files holds the paths of the generated PEM files.
type Files struct {
	Dir string

	CACert string

	ServerCert string
	ServerKey  string

	OperatorCert string
	OperatorKey  string

	ViewerCert string
	ViewerKey  string
}

type issuer struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

var serial atomic.Int64

// Generate writes a CA, a server certificate valid for localhost and
// 127.0.0.1, and operator and viewer client certificates into a temporary
// directory.
func Generate(t testing.TB) *Files {
	t.Helper()

	dir := t.TempDir()

	f := &Files{
		Dir:          dir,
		CACert:       filepath.Join(dir, "ca.crt"),
		ServerCert:   filepath.Join(dir, "server.crt"),
		ServerKey:    filepath.Join(dir, "server.key"),
		OperatorCert: filepath.Join(dir, "client-operator.crt"),
		OperatorKey:  filepath.Join(dir, "client-operator.key"),
		ViewerCert:   filepath.Join(dir, "client-viewer.crt"),
		ViewerKey:    filepath.Join(dir, "client-viewer.key"),
	}

	caKey := newKey(t)
	caTemplate := template(pkix.Name{CommonName: "ecsexec-test-ca"})
	caTemplate.IsCA = true
	caTemplate.BasicConstraintsValid = true
	caTemplate.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA certificate: '%v'", err)
	}

	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse CA certificate: '%v'", err)
	}

	writePEM(t, f.CACert, "CERTIFICATE", caDER)

	ca := &issuer{cert: caCert, key: caKey}

	server := template(pkix.Name{CommonName: "localhost"})
	server.DNSNames = []string{"localhost"}
	server.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
	server.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	ca.issue(t, server, f.ServerCert, f.ServerKey)

	for _, client := range []struct {
		ou, cert, key string
	}{
		{"operator", f.OperatorCert, f.OperatorKey},
		{"viewer", f.ViewerCert, f.ViewerKey},
	} {
		tmpl := template(pkix.Name{
			CommonName:         client.ou + "-client",
			OrganizationalUnit: []string{client.ou},
		})
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
		ca.issue(t, tmpl, client.cert, client.key)
	}

	return f
}

func (ca *issuer) issue(t testing.TB, tmpl *x509.Certificate, certPath, keyPath string) {
	t.Helper()

	key := newKey(t)

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		t.Fatalf("create certificate %s: '%v'", tmpl.Subject.CommonName, err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key %s: '%v'", tmpl.Subject.CommonName, err)
	}

	writePEM(t, certPath, "CERTIFICATE", der)
	writePEM(t, keyPath, "EC PRIVATE KEY", keyDER)
}

func template(subject pkix.Name) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano() + serial.Add(1)),
		Subject:      subject,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: '%v'", err)
	}

	return key
}

func writePEM(t testing.TB, path, blockType string, der []byte) {
	t.Helper()

	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})

	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: '%v'", path, err)
	}
}
