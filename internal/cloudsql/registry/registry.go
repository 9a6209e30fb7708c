// Package registry implements ConnectorRegistry (spec.md §4.6): the
// process singleton that owns the shared worker pool, the single RSA key
// pair, the credential source, and the instance-identifier -> cache map,
// and is the entry point driver shims call into.
package registry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/cache"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/config"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/identifier"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/keys"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/observability"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/ratelimit"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/refresh"
)

// DialConfig is the driver-shim input of spec.md §6: `connect(config)`.
type DialConfig struct {
	Instance             string
	IPTypes              []adminapi.IPType
	UnixSocketPath       string
	UnixSocketPathSuffix string
}

// Registry is the ConnectorRegistry singleton. A process typically builds
// exactly one, via New, and passes it to every driver shim.
type Registry struct {
	tokens oauth2.TokenSource
	logger *zap.Logger

	pool               *Pool
	keys               keys.Lazy
	repository         *adminapi.Repository
	refreshTimeout     time.Duration
	getDataTimeout     time.Duration
	minRefreshInterval time.Duration

	caches sync.Map // instance connection name -> *cache.Cache

	applicationName atomic.Value // string
	used            atomic.Bool
}

// New creates a Registry. tokens authorizes every admin API call; pool is
// the shared worker pool every instance's refresh work runs on (a fresh
// DefaultPoolSize pool is created if nil).
func New(tokens oauth2.TokenSource, pool *Pool, logger *zap.Logger) *Registry {
	return NewWithRepository(tokens, pool, logger, nil, "")
}

// NewWithRepository is New, but lets a caller override the HTTP client
// and admin API endpoint the Registry's Repository talks to -- used by
// the public Dialer to honor WithHTTPClient/WithAdminAPIEndpoint, and by
// tests that point at an httptest server instead of the real admin API.
func NewWithRepository(tokens oauth2.TokenSource, pool *Pool, logger *zap.Logger, httpClient *http.Client, endpoint string) *Registry {
	if pool == nil {
		pool = NewPool(DefaultPoolSize)
	}
	if logger == nil {
		logger = observability.Global().Logger
	}
	r := &Registry{
		tokens:             tokens,
		logger:             logger,
		pool:               pool,
		refreshTimeout:     refresh.DefaultFetchTimeout,
		getDataTimeout:     cache.DefaultGetDataTimeout,
		minRefreshInterval: ratelimit.DefaultMinDelay,
	}
	r.repository = adminapi.NewRepository(httpClient, tokens, endpoint, logger)
	r.applicationName.Store("")
	return r
}

// SetRefreshTimeout overrides the per-attempt admin API fetch timeout
// every subsequently created cache's Refresher uses (refresh.DefaultFetchTimeout
// otherwise). Sourced from an optional config.Defaults file via
// cloudsqlconn.WithConfigFile.
func (r *Registry) SetRefreshTimeout(d time.Duration) {
	if d > 0 {
		r.refreshTimeout = d
	}
}

// SetGetDataTimeout overrides how long each cache's Dial waits for a
// usable InstanceData before giving up (cache.DefaultGetDataTimeout
// otherwise).
func (r *Registry) SetGetDataTimeout(d time.Duration) {
	if d > 0 {
		r.getDataTimeout = d
	}
}

// SetMinRefreshInterval overrides the minimum interval enforced between
// consecutive refresh attempts for every subsequently created cache
// (ratelimit.DefaultMinDelay otherwise).
func (r *Registry) SetMinRefreshInterval(d time.Duration) {
	if d > 0 {
		r.minRefreshInterval = d
	}
}

// SetApplicationName records an application name for this Registry,
// readable through ApplicationName. Admin API requests do not carry it:
// the Repository sets no User-Agent header from it. It must be called
// before the registry produces its first cache; calling it afterward
// returns ErrAlreadyInitialised and leaves the recorded name unchanged.
func (r *Registry) SetApplicationName(name string) error {
	if r.used.Load() {
		return ErrAlreadyInitialised
	}
	r.applicationName.Store(name)
	return nil
}

// ApplicationName returns the currently configured application name.
func (r *Registry) ApplicationName() string {
	return r.applicationName.Load().(string)
}

// Connect implements the driver-shim entry point of spec.md §4.6:
// validate the instance, take the Unix-socket pass-through branch if
// configured, or otherwise obtain this instance's cache, dial its
// preferred IP over mutual TLS, and return the connected socket.
func (r *Registry) Connect(ctx context.Context, cfg DialConfig) (net.Conn, error) {
	if cfg.Instance == "" {
		return nil, ErrInstanceRequired
	}

	if config.ForceUnixSocket() || cfg.UnixSocketPath != "" {
		path := config.UnixSocketPath(cfg.UnixSocketPath, cfg.Instance, cfg.UnixSocketPathSuffix)
		return net.Dial("unix", path)
	}

	start := time.Now()
	c, err := r.getOrCreateCache(cfg.Instance, cfg.IPTypes)
	if err != nil {
		return nil, err
	}

	conn, err := c.Dial(ctx)
	observability.DialDuration.WithLabelValues(cfg.Instance).Observe(time.Since(start).Seconds())
	if err != nil {
		// Shed a stale certificate on any dial/handshake failure, per
		// spec.md §4.5, rather than leaving the next caller to retry
		// against the same doomed InstanceData.
		c.ForceRefresh()
		return nil, err
	}
	return conn, nil
}

// getOrCreateCache implements the registry's atomic compute-if-absent
// over instance identifier, matching the concurrent-hash-map policy of
// spec.md §5.
func (r *Registry) getOrCreateCache(rawInstance string, ipTypes []adminapi.IPType) (*cache.Cache, error) {
	id, err := identifier.Parse(rawInstance)
	if err != nil {
		return nil, &adminapi.APIError{Kind: adminapi.KindInvalidInstanceName, Op: "parse instance connection name", Conn: rawInstance, Err: err}
	}
	name := id.String()

	if existing, ok := r.caches.Load(name); ok {
		return existing.(*cache.Cache), nil
	}

	r.used.Store(true)

	newCache, err := r.newCache(id, ipTypes)
	if err != nil {
		return nil, err
	}

	actual, loaded := r.caches.LoadOrStore(name, newCache)
	if loaded {
		newCache.Close()
		return actual.(*cache.Cache), nil
	}
	return newCache, nil
}

func (r *Registry) newCache(id identifier.Identifier, ipTypes []adminapi.IPType) (*cache.Cache, error) {
	pair, err := r.keys.Get()
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: generate key pair: %w", err)
	}

	connName := id.String()
	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		return r.repository.Fetch(ctx, adminapi.FetchRequest{
			Project:      id.Project(),
			Region:       id.Region(),
			InstanceName: id.Name(),
			ConnName:     connName,
			PublicKeyPEM: pair.PublicPEM,
			PrivateKey:   pair.Private,
		})
	}

	limiter := ratelimit.New(r.minRefreshInterval)
	refresher := refresh.New(connName, op, limiter, r.pool.Submit,
		refresh.WithLogger(r.logger),
		refresh.WithFetchTimeout(r.refreshTimeout),
	)

	return cache.New(connName, refresher, ipTypes, cache.WithGetDataTimeout(r.getDataTimeout)), nil
}

// Close releases every cache's Refresher and shuts down the worker pool.
func (r *Registry) Close() {
	r.caches.Range(func(_, value any) bool {
		value.(*cache.Cache).Close()
		return true
	})
	r.pool.Close()
}
