// Package testhelpers provides fakes shared across this module's test
// files, mirroring the teacher's test/helpers package of hand-rolled
// fakes for Vault and TLS.
package testhelpers

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// FakeAdminAPI is an in-memory stand-in for the Cloud SQL Admin API's
// connectSettings and generateEphemeralCert endpoints. It signs every
// certificate signing request against a freshly generated CA, so the
// resulting client certificate and server CA pool chain correctly.
type FakeAdminAPI struct {
	Server *httptest.Server

	caKey  *rsa.PrivateKey
	caCert *x509.Certificate
	caPEM  []byte

	certLifetime time.Duration
	serial       atomic.Int64

	mu       sync.Mutex
	failWith int // HTTP status to return instead of succeeding, 0 if none
	ips      map[string]string
}

// NewFakeAdminAPI starts a FakeAdminAPI listening on a loopback address.
// Callers should Close it via Server.Close.
func NewFakeAdminAPI() (*FakeAdminAPI, error) {
	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "fake-cloudsql-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}

	f := &FakeAdminAPI{
		caKey:        caKey,
		caCert:       caCert,
		caPEM:        pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}),
		certLifetime: time.Hour,
		ips:          map[string]string{"PRIMARY": "127.0.0.1"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sql/v1beta4/projects/", f.route)
	f.Server = httptest.NewServer(mux)
	return f, nil
}

// SetFailure makes every subsequent request fail with the given HTTP
// status code; pass 0 to resume succeeding.
func (f *FakeAdminAPI) SetFailure(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = status
}

// SetCertLifetime overrides the lifetime of certificates this fake issues
// (an hour by default), letting tests exercise imminent-expiry refresh
// behavior without waiting an hour.
func (f *FakeAdminAPI) SetCertLifetime(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certLifetime = d
}

// Endpoint returns the base URL a Repository should be pointed at.
func (f *FakeAdminAPI) Endpoint() string {
	return f.Server.URL
}

func (f *FakeAdminAPI) route(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	failWith := f.failWith
	f.mu.Unlock()
	if failWith != 0 {
		http.Error(w, "injected failure", failWith)
		return
	}

	switch {
	case r.Method == http.MethodGet && isConnectSettingsPath(r.URL.Path):
		f.writeConnectSettings(w)
	case r.Method == http.MethodPost && isGenerateCertPath(r.URL.Path):
		f.writeEphemeralCert(w, r)
	default:
		http.NotFound(w, r)
	}
}

func isConnectSettingsPath(path string) bool {
	const suffix = "/connectSettings"
	return len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix
}

func isGenerateCertPath(path string) bool {
	const suffix = ":generateEphemeralCert"
	return len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix
}

func (f *FakeAdminAPI) writeConnectSettings(w http.ResponseWriter) {
	f.mu.Lock()
	ips := make([]map[string]string, 0, len(f.ips))
	for ipType, addr := range f.ips {
		ips = append(ips, map[string]string{"type": ipType, "ipAddress": addr})
	}
	f.mu.Unlock()

	resp := map[string]any{
		"ipAddresses":     ips,
		"serverCaCert":    map[string]string{"cert": string(f.caPEM)},
		"databaseVersion": "POSTGRES_15",
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *FakeAdminAPI) writeEphemeralCert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	block, _ := pem.Decode([]byte(body.PublicKey))
	if block == nil {
		http.Error(w, "invalid public key PEM", http.StatusBadRequest)
		return
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	lifetime := f.certLifetime
	f.mu.Unlock()

	serial := f.serial.Add(1)
	expiry := time.Now().Add(lifetime)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "fake-ephemeral-client"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     expiry,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, f.caCert, pub, f.caKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	resp := map[string]any{
		"ephemeralCert": map[string]string{
			"cert":           string(certPEM),
			"expirationTime": expiry.UTC().Format(time.RFC3339),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
