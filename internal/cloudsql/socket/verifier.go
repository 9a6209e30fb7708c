// Package socket builds the mutual-TLS dial to a Cloud SQL instance's
// server proxy: a TCP connection, wrapped in TLS, whose server identity is
// verified against the instance connection name embedded in the server
// certificate rather than against DNS hostname or IP (spec.md §4.7).
package socket

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// VerifyServerName builds a crypto/tls VerifyPeerCertificate callback that
// checks the leaf certificate's Common Name against wantName instead of
// relying on crypto/tls's own hostname verification, which never applies
// here: the instance is dialed by IP, and its certificate's subject has
// nothing to do with DNS.
//
// This mirrors the teacher's tls.ExtractClientIdentity in spirit
// (pulling a structured identity out of a certificate) but checks a
// server certificate's Common Name against an expected instance name
// instead of extracting a client's identity for authorization.
func VerifyServerName(wantName string, roots *x509.CertPool) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("cloudsqlconn: server presented no certificate")
		}

		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("cloudsqlconn: parse server certificate: %w", err)
		}

		intermediates := x509.NewCertPool()
		for _, raw := range rawCerts[1:] {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("cloudsqlconn: parse server certificate chain: %w", err)
			}
			intermediates.AddCert(cert)
		}

		if _, err := leaf.Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}); err != nil {
			return fmt.Errorf("cloudsqlconn: verify server certificate chain: %w", err)
		}

		if leaf.Subject.CommonName != wantName {
			return fmt.Errorf("cloudsqlconn: server certificate identity %q does not match instance %q",
				leaf.Subject.CommonName, wantName)
		}
		return nil
	}
}

// ClientConfig builds the *tls.Config used to dial an instance: the
// ephemeral client certificate authenticates this process to the server
// proxy, and the custom VerifyPeerCertificate callback authenticates the
// server proxy to this process.
func ClientConfig(clientCert tls.Certificate, roots *x509.CertPool, serverName string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      roots,
		// InsecureSkipVerify disables crypto/tls's own hostname check; the
		// replacement identity check happens in VerifyPeerCertificate,
		// which still verifies the chain against roots.
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: VerifyServerName(serverName, roots),
		MinVersion:            tls.VersionTLS13,
	}
}
