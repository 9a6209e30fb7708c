package cloudsqlconn

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/credentials"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/registry"
)

// Dialer dials Cloud SQL instances. It owns exactly one ConnectorRegistry
// and should be constructed once per process and reused across every
// Dial call, so the worker pool, RSA key pair, and per-instance caches
// this package relies on are actually shared (spec.md §4.6, §5).
type Dialer struct {
	registry     *registry.Registry
	defaultTypes []adminapi.IPType
}

// NewDialer resolves credentials and builds a Dialer ready to accept
// Dial calls. Credential resolution (reading a key file, a Vault secret,
// or validating a supplied token source) happens once here, not on every
// Dial.
func NewDialer(ctx context.Context, opts ...Option) (*Dialer, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.configErr != nil {
		return nil, fmt.Errorf("cloudsqlconn: load config file: %w", cfg.configErr)
	}

	resolveCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	cfg.credentials.Logger = cfg.logger
	tokens, err := credentials.Resolve(resolveCtx, cfg.credentials)
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: resolve credentials: %w", err)
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := registry.NewPool(cfg.poolSize)
	reg := registry.NewWithRepository(tokens, pool, logger, cfg.httpClient, cfg.adminEndpoint)
	reg.SetRefreshTimeout(cfg.refreshTimeout)
	reg.SetGetDataTimeout(cfg.getDataTimeout)
	reg.SetMinRefreshInterval(cfg.minRefreshInterval)

	return &Dialer{registry: reg, defaultTypes: cfg.ipTypes}, nil
}

// Dial connects to instance ("project:region:instance") and returns a
// connected, TLS-handshaken net.Conn (or a Unix-domain-socket net.Conn if
// a Unix socket override applies). The returned connection is ready for
// a database driver to speak its wire protocol over immediately.
func (d *Dialer) Dial(ctx context.Context, instance string, opts ...DialOption) (net.Conn, error) {
	cfg := registry.DialConfig{
		Instance: instance,
		IPTypes:  d.defaultTypes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return d.registry.Connect(ctx, cfg)
}

// SetApplicationName records an application name on this Dialer's
// registry. Admin API requests do not carry it in their User-Agent. It
// must be called before the first Dial call that creates an instance
// cache; calling it afterward returns an error.
func (d *Dialer) SetApplicationName(name string) error {
	return d.registry.SetApplicationName(name)
}

// Close releases every cached instance's refresh loop and the shared
// worker pool. A Dialer must not be used after Close.
func (d *Dialer) Close() {
	d.registry.Close()
}
