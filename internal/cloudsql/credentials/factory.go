package credentials

import (
	"context"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Config selects and parameterizes exactly one Source. Exactly one of
// CredentialsFile, Vault, or TokenSource should be set; New validates
// this.
type Config struct {
	// CredentialsFile, if set, builds a FileSource over this path.
	CredentialsFile string

	// Vault, if set, builds a VaultSource.
	Vault *VaultConfig

	// TokenSource, if set, builds a StaticSource wrapping it directly
	// (for Application Default Credentials or tests).
	TokenSource oauth2.TokenSource

	Scopes []string
	Logger *zap.Logger
}

// VaultConfig parameterizes VaultSource.
type VaultConfig struct {
	Client *vaultapi.Client
	Mount  string
	Path   string
	Field  string
}

// New resolves cfg to a concrete Source.
func New(cfg Config) (Source, error) {
	set := 0
	if cfg.CredentialsFile != "" {
		set++
	}
	if cfg.Vault != nil {
		set++
	}
	if cfg.TokenSource != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("cloudsqlconn: exactly one of CredentialsFile, Vault, or TokenSource must be set")
	}

	switch {
	case cfg.CredentialsFile != "":
		fs := NewFileSource(cfg.CredentialsFile, cfg.Scopes...)
		fs.Logger = cfg.Logger
		return fs, nil
	case cfg.Vault != nil:
		return &VaultSource{
			Client: cfg.Vault.Client,
			Mount:  cfg.Vault.Mount,
			Path:   cfg.Vault.Path,
			Field:  cfg.Vault.Field,
			Scopes: cfg.Scopes,
		}, nil
	default:
		return &StaticSource{Base: cfg.TokenSource}, nil
	}
}

// Resolve is a convenience wrapper: build the Source described by cfg and
// immediately resolve it to a TokenSource.
func Resolve(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	src, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return src.TokenSource(ctx)
}
