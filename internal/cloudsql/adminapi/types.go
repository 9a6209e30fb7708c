// Package adminapi adapts the Cloud SQL Admin API: given an instance
// identifier and an ephemeral public key, it returns the InstanceData
// bundle the rest of the connector treats as the unit of refresh.
package adminapi

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"time"
)

// IPType tags the kind of IP address an instance exposes.
type IPType string

const (
	IPTypePrimary IPType = "PRIMARY"
	IPTypePrivate IPType = "PRIVATE"
	IPTypePSC     IPType = "PSC"
)

// InstanceData is the immutable bundle fetched once per refresh (I7 in
// spec.md): an ephemeral client certificate, the instance's CA chain, and
// its IP addresses by type. Nothing in this module ever mutates a value of
// this type after it is published to a Refresher's current cell.
type InstanceData struct {
	// Expiration is the moment the ephemeral client certificate in
	// ClientCert stops being valid.
	Expiration time.Time

	// ClientCert is the ephemeral client certificate signed by the admin
	// API over this process's RSA public key, paired with the matching
	// private key.
	ClientCert tls.Certificate

	// ServerCAPool trusts the instance's server certificate chain.
	ServerCAPool *x509.CertPool

	// ServerName is the identity the instance's server certificate embeds
	// (typically "project:region:instance"). SocketBuilder verifies
	// against this value instead of against DNS hostname or IP.
	ServerName string

	// IPAddresses maps IP type to its dotted-decimal or IPv6 string.
	IPAddresses map[IPType]string

	// DatabaseVersion is opaque metadata returned by the admin API, not
	// interpreted by the core.
	DatabaseVersion string
}

// IP returns the first address among preference, in order, or ("", false)
// if none of the requested types are present.
func (d *InstanceData) IP(preference []IPType) (string, bool) {
	for _, t := range preference {
		if ip, ok := d.IPAddresses[t]; ok && ip != "" {
			return ip, true
		}
	}
	return "", false
}

// FetchRequest is the input to Repository.Fetch: the instance to look up
// and the ephemeral key pair to have signed into a client certificate.
type FetchRequest struct {
	Project      string
	Region       string
	InstanceName string
	ConnName     string // "project:region:instance", for logging/metrics
	PublicKeyPEM []byte
	PrivateKey   *rsa.PrivateKey
}
