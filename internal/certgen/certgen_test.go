package certgen

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, pattern string, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func parseCert(t *testing.T, certPEM []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("cert PEM invalid")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	return cert
}

func TestGenerateCA(t *testing.T) {
	caCert, caKey, certPEM, keyPEM, err := GenerateCA("Test CA")
	if err != nil {
		t.Fatalf("GenerateCA error: %v", err)
	}
	if !caCert.IsCA || !caCert.BasicConstraintsValid {
		t.Error("CA certificate should have IsCA and BasicConstraintsValid")
	}
	if caCert.KeyUsage&x509.KeyUsageCertSign == 0 {
		t.Errorf("CA KeyUsage = %v; want CertSign", caCert.KeyUsage)
	}
	if got := parseCert(t, certPEM); got.Subject.CommonName != "Test CA" {
		t.Errorf("CommonName = %q", got.Subject.CommonName)
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		t.Fatal("key PEM invalid")
	}
	parsed, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if !parsed.PublicKey.Equal(&caKey.PublicKey) {
		t.Error("encoded key does not match")
	}
}

func TestLoadCACredentials_Success(t *testing.T) {
	wantCert, wantKey, certPEM, keyPEM, err := GenerateCA("Test CA")
	if err != nil {
		t.Fatal(err)
	}
	certPath := writeTemp(t, "ca-cert-*.pem", certPEM)
	keyPath := writeTemp(t, "ca-key-*.pem", keyPEM)

	certOut, keyOut, err := LoadCACredentials(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadCACredentials error: %v", err)
	}
	if certOut.Subject.CommonName != wantCert.Subject.CommonName {
		t.Errorf("CommonName = %q; want %q", certOut.Subject.CommonName, wantCert.Subject.CommonName)
	}
	parsedKey, ok := keyOut.(*ecdsa.PrivateKey)
	if !ok {
		t.Fatalf("key type = %T; want *ecdsa.PrivateKey", keyOut)
	}
	if !parsedKey.PublicKey.Equal(&wantKey.PublicKey) {
		t.Error("public key mismatch")
	}
}

func TestLoadCACredentials_Errors(t *testing.T) {
	_, _, certPEM, keyPEM, err := GenerateCA("Test CA")
	if err != nil {
		t.Fatal(err)
	}
	goodCert := writeTemp(t, "ca-cert-*.pem", certPEM)
	goodKey := writeTemp(t, "ca-key-*.pem", keyPEM)
	junk := writeTemp(t, "junk-*.pem", []byte("not a pem"))

	tests := []struct {
		name     string
		cert     string
		key      string
		contains string
	}{
		{"missing cert", "/no/such/file.pem", goodKey, "read ca cert"},
		{"missing key", goodCert, "/no/such/key.pem", "read ca key"},
		{"bad cert", junk, goodKey, "invalid CA cert PEM"},
		{"bad key", goodCert, junk, "invalid CA key PEM"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := LoadCACredentials(tc.cert, tc.key)
			if err == nil || !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("got %v; want error containing %q", err, tc.contains)
			}
		})
	}
}

func TestGenerateContextCertificate(t *testing.T) {
	caCert, caKey, _, _, err := GenerateCA("Test CA")
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range DefaultContexts {
		t.Run(name, func(t *testing.T) {
			certPEM, keyPEM, err := GenerateContextCertificate(name, caCert, caKey)
			if err != nil {
				t.Fatalf("GenerateContextCertificate error: %v", err)
			}
			cert := parseCert(t, certPEM)
			if cert.Subject.CommonName != name {
				t.Errorf("CommonName = %q; want %q", cert.Subject.CommonName, name)
			}
			if err := cert.CheckSignatureFrom(caCert); err != nil {
				t.Errorf("signature check failed: %v", err)
			}
			if !slices.Equal(cert.ExtKeyUsage, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}) {
				t.Errorf("ExtKeyUsage = %v; want client auth only", cert.ExtKeyUsage)
			}
			block, _ := pem.Decode(keyPEM)
			if block == nil || block.Type != "EC PRIVATE KEY" {
				t.Fatal("key PEM invalid")
			}
		})
	}
}

func TestGenerateServerCertificate(t *testing.T) {
	caCert, caKey, _, _, err := GenerateCA("Test CA")
	if err != nil {
		t.Fatal(err)
	}
	certPEM, _, err := GenerateServerCertificate(ContextBroker, caCert, caKey)
	if err != nil {
		t.Fatal(err)
	}
	cert := parseCert(t, certPEM)
	if !slices.Equal(cert.DNSNames, []string{"localhost"}) {
		t.Errorf("DNSNames = %v", cert.DNSNames)
	}
	if !slices.Contains(cert.ExtKeyUsage, x509.ExtKeyUsageServerAuth) {
		t.Errorf("ExtKeyUsage = %v; want server auth", cert.ExtKeyUsage)
	}
	if err := cert.VerifyHostname("localhost"); err != nil {
		t.Errorf("VerifyHostname: %v", err)
	}
}

func TestWritePair(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	if err := WritePair(dir, "bridge", []byte("cert"), []byte("key")); err != nil {
		t.Fatalf("WritePair error: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "bridge.crt"))
	if err != nil || string(got) != "cert" {
		t.Errorf("cert = %q, %v", got, err)
	}
	info, err := os.Stat(filepath.Join(dir, "bridge.key"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key mode = %v; want 0600", info.Mode().Perm())
	}
}
