package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
	"golang.org/x/oauth2"
)

// VaultSource reads a service account key out of a Vault KV v2 secret
// instead of a local file, for deployments where the key is managed as a
// Vault-issued secret. This mirrors the teacher's internal/vault.Client
// KV accessor shape, scoped down to the one read this package needs.
//
// The secret's data must contain the same fields as a Google service
// account JSON key (client_email, private_key, private_key_id, and
// optionally token_uri), stored as a JSON-encoded string under Field.
type VaultSource struct {
	Client *vaultapi.Client
	Mount  string
	Path   string
	Field  string // defaults to "service_account_key"
	Scopes []string
}

// NewVaultSource builds a VaultSource reading mount/path from client.
func NewVaultSource(client *vaultapi.Client, mount, path string, scopes ...string) *VaultSource {
	return &VaultSource{Client: client, Mount: mount, Path: path, Field: "service_account_key", Scopes: scopes}
}

// TokenSource implements Source by reading the key material from Vault
// once and delegating the actual signing to a JWTSource.
func (s *VaultSource) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	secret, err := s.Client.KVv2(s.Mount).Get(ctx, s.Path)
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: read service account key from vault: %w", err)
	}

	field := s.Field
	if field == "" {
		field = "service_account_key"
	}
	raw, ok := secret.Data[field].(string)
	if !ok {
		return nil, fmt.Errorf("cloudsqlconn: vault secret %s/%s missing field %q", s.Mount, s.Path, field)
	}

	var key ServiceAccountKey
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, fmt.Errorf("cloudsqlconn: decode service account key from vault: %w", err)
	}

	jwtSource := NewJWTSource(&key, s.Scopes...)
	return jwtSource.TokenSource(ctx)
}
