package cloudsqlconn

import (
	"net/http"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/config"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/credentials"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/registry"
)

// dialerOptions accumulates the choices Option functions make, mirroring
// the functional-option style the teacher uses throughout internal/tls
// and internal/config.
type dialerOptions struct {
	credentials    credentials.Config
	adminEndpoint  string
	httpClient     *http.Client
	logger         *zap.Logger
	poolSize           int
	ipTypes            []adminapi.IPType
	refreshTimeout     time.Duration
	getDataTimeout     time.Duration
	minRefreshInterval time.Duration
	configErr          error
}

// Option configures a Dialer.
type Option func(*dialerOptions)

// WithCredentialsFile sources credentials from a local service account
// JSON key file, reloaded automatically if the file changes on disk.
func WithCredentialsFile(path string) Option {
	return func(o *dialerOptions) { o.credentials.CredentialsFile = path }
}

// WithVaultCredentials sources credentials from a Vault KV v2 secret.
func WithVaultCredentials(client *vaultapi.Client, mount, path string) Option {
	return func(o *dialerOptions) {
		o.credentials.Vault = &credentials.VaultConfig{Client: client, Mount: mount, Path: path}
	}
}

// WithTokenSource sources credentials from an already-configured
// oauth2.TokenSource, e.g. Application Default Credentials.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *dialerOptions) { o.credentials.TokenSource = ts }
}

// WithAdminAPIEndpoint overrides the Cloud SQL Admin API host, primarily
// for tests.
func WithAdminAPIEndpoint(endpoint string) Option {
	return func(o *dialerOptions) { o.adminEndpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client used to reach the admin API.
func WithHTTPClient(client *http.Client) Option {
	return func(o *dialerOptions) { o.httpClient = client }
}

// WithLogger attaches structured logging to every refresh and dial.
func WithLogger(logger *zap.Logger) Option {
	return func(o *dialerOptions) { o.logger = logger }
}

// WithWorkerPoolSize overrides the shared refresh worker pool size
// (registry.DefaultPoolSize otherwise).
func WithWorkerPoolSize(size int) Option {
	return func(o *dialerOptions) { o.poolSize = size }
}

// WithIPTypes sets the default IP type preference order applied when a
// Dial call does not specify its own.
func WithIPTypes(types ...adminapi.IPType) Option {
	return func(o *dialerOptions) { o.ipTypes = types }
}

// WithConfigFile loads worker pool size, IP type preference, and refresh
// timeout defaults from a YAML file (internal/cloudsql/config.Defaults),
// overriding whatever WithWorkerPoolSize/WithIPTypes options precede it
// in the option list. A load or validation failure is surfaced from
// NewDialer, not from this Option itself.
func WithConfigFile(path string) Option {
	return func(o *dialerOptions) {
		defaults, err := config.LoadDefaults(path)
		if err != nil {
			o.configErr = err
			return
		}
		o.poolSize = defaults.WorkerPoolSize
		o.ipTypes = defaults.IPTypes()
		o.refreshTimeout = defaults.RefreshTimeout
		o.getDataTimeout = defaults.GetDataTimeout
		o.minRefreshInterval = defaults.MinRefreshInterval
	}
}

func defaultOptions() *dialerOptions {
	return &dialerOptions{
		poolSize: registry.DefaultPoolSize,
		ipTypes:  []adminapi.IPType{adminapi.IPTypePrimary},
	}
}

// DialOption configures a single Dial call.
type DialOption func(*registry.DialConfig)

// WithDialIPTypes overrides the IP type preference order for one Dial
// call only.
func WithDialIPTypes(types ...adminapi.IPType) DialOption {
	return func(c *registry.DialConfig) { c.IPTypes = types }
}

// WithUnixSocket routes one Dial call through a Unix-domain socket at
// path instead of the TLS path.
func WithUnixSocket(path, suffix string) DialOption {
	return func(c *registry.DialConfig) {
		c.UnixSocketPath = path
		c.UnixSocketPathSuffix = suffix
	}
}

// dialTimeout is the constructor's own bound on how long credential
// resolution may take; it is unrelated to any individual Dial's timeout.
const dialTimeout = 30 * time.Second
