// Package keys generates the single RSA key pair shared by every refresh
// across every instance in a process.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
)

// KeySize is the RSA modulus size, in bits, used for the client key pair.
// The admin API signs an ephemeral certificate over the public half of
// this key; RSA-2048 matches the key size the admin API expects.
const KeySize = 2048

// Pair holds a generated RSA key pair along with its PEM-encoded public
// key, ready to submit to the admin API for signing.
type Pair struct {
	Private *rsa.PrivateKey
	PublicPEM []byte
}

// Generate creates a new RSA key pair of KeySize bits.
func Generate() (*Pair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: failed to generate RSA key pair: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: failed to marshal RSA public key: %w", err)
	}

	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return &Pair{Private: priv, PublicPEM: pubPEM}, nil
}

// Lazy generates a key pair exactly once and caches it, matching the
// registry's requirement that the key pair be shared, read-only, by every
// instance's refresh for the lifetime of the process.
type Lazy struct {
	once sync.Once
	pair *Pair
	err  error
}

// Get returns the cached key pair, generating it on the first call.
func (l *Lazy) Get() (*Pair, error) {
	l.once.Do(func() {
		l.pair, l.err = Generate()
	})
	return l.pair, l.err
}
