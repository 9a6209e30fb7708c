package adminapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/observability"
)

// DefaultEndpoint is the Cloud SQL Admin API host used when no override is
// configured.
const DefaultEndpoint = "https://sqladmin.googleapis.com"

// connectSettingsResponse mirrors the fields of the admin API's
// connectSettings response this client consumes. Unknown fields are
// ignored by encoding/json.
type connectSettingsResponse struct {
	IPAddresses []struct {
		Type   string `json:"type"`
		IPAddr string `json:"ipAddress"`
	} `json:"ipAddresses"`
	ServerCACert struct {
		Cert string `json:"cert"`
	} `json:"serverCaCert"`
	DatabaseVersion string `json:"databaseVersion"`
}

type generateEphemeralCertResponse struct {
	EphemeralCert struct {
		Cert       string `json:"cert"`
		ExpireTime string `json:"expirationTime"`
	} `json:"ephemeralCert"`
}

// Repository is the ConnectionInfoRepository of spec.md §4.3: it turns a
// FetchRequest into an InstanceData by issuing two admin API calls over
// HTTP, fronted by a circuit breaker per instance so a persistently
// failing instance fails fast instead of burning the rate limiter's
// budget on doomed attempts. The breaker only ever short-circuits
// individual fetch attempts; it never participates in the Refresher's
// retry/backoff decisions.
type Repository struct {
	httpClient *http.Client
	tokens     oauth2.TokenSource
	endpoint   string
	logger     *zap.Logger

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker[*InstanceData]
}

// NewRepository builds a Repository that authorizes every request with
// tokens drawn from tokens and talks to endpoint (DefaultEndpoint if
// empty).
func NewRepository(httpClient *http.Client, tokens oauth2.TokenSource, endpoint string, logger *zap.Logger) *Repository {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		httpClient: httpClient,
		tokens:     tokens,
		endpoint:   endpoint,
		logger:     logger,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[*InstanceData]),
	}
}

// Fetch implements ConnectionInfoRepository.fetch.
func (r *Repository) Fetch(ctx context.Context, req FetchRequest) (*InstanceData, error) {
	ctx, span := observability.StartClientSpan(ctx, "adminapi.Fetch", observability.InstanceAttribute(req.ConnName))

	cb := r.breakerFor(req.ConnName)
	data, err := cb.Execute(func() (*InstanceData, error) {
		return r.fetchOnce(ctx, req)
	})
	observability.EndSpan(span, err)
	return data, err
}

func (r *Repository) breakerFor(name string) *gobreaker.CircuitBreaker[*InstanceData] {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := newBreaker(name, r.logger)
	r.breakers[name] = cb
	return cb
}

func (r *Repository) fetchOnce(ctx context.Context, req FetchRequest) (*InstanceData, error) {
	token, err := r.tokens.Token()
	if err != nil {
		return nil, &APIError{Kind: KindAdminAPIFailed, Op: "obtain access token", Conn: req.ConnName, Err: err}
	}

	settings, err := r.fetchConnectSettings(ctx, req, token)
	if err != nil {
		return nil, err
	}

	certPEM, expiration, err := r.fetchEphemeralCert(ctx, req, token)
	if err != nil {
		return nil, err
	}

	clientCert, err := buildClientCert(certPEM, req.PrivateKey)
	if err != nil {
		return nil, &APIError{Kind: KindAdminAPIFailed, Op: "parse ephemeral certificate", Conn: req.ConnName, Err: err}
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM([]byte(settings.ServerCACert.Cert)) {
		return nil, &APIError{Kind: KindAdminAPIFailed, Op: "parse server CA certificate", Conn: req.ConnName, Err: fmt.Errorf("no certificates found in response")}
	}

	ips := make(map[IPType]string, len(settings.IPAddresses))
	for _, addr := range settings.IPAddresses {
		ips[IPType(addr.Type)] = addr.IPAddr
	}

	return &InstanceData{
		Expiration:      expiration,
		ClientCert:      clientCert,
		ServerCAPool:    caPool,
		ServerName:      req.ConnName,
		IPAddresses:     ips,
		DatabaseVersion: settings.DatabaseVersion,
	}, nil
}

func buildClientCert(certPEM []byte, priv any) (tls.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return tls.Certificate{}, fmt.Errorf("no CERTIFICATE block in ephemeral certificate response")
	}
	return tls.Certificate{
		Certificate: [][]byte{block.Bytes},
		PrivateKey:  priv,
	}, nil
}

func (r *Repository) fetchConnectSettings(ctx context.Context, req FetchRequest, token *oauth2.Token) (*connectSettingsResponse, error) {
	url := fmt.Sprintf("%s/sql/v1beta4/projects/%s/instances/%s/connectSettings", r.endpoint, req.Project, req.InstanceName)
	var out connectSettingsResponse
	if err := r.doJSON(ctx, http.MethodGet, url, token, nil, &out); err != nil {
		return nil, r.classify(req.ConnName, "fetch connect settings", err)
	}
	return &out, nil
}

func (r *Repository) fetchEphemeralCert(ctx context.Context, req FetchRequest, token *oauth2.Token) (certPEM []byte, expiration time.Time, err error) {
	url := fmt.Sprintf("%s/sql/v1beta4/projects/%s/instances/%s:generateEphemeralCert", r.endpoint, req.Project, req.InstanceName)
	body := map[string]string{
		"public_key": string(req.PublicKeyPEM),
	}
	var out generateEphemeralCertResponse
	if err := r.doJSON(ctx, http.MethodPost, url, token, body, &out); err != nil {
		return nil, time.Time{}, r.classify(req.ConnName, "generate ephemeral certificate", err)
	}
	expiration, parseErr := time.Parse(time.RFC3339, out.EphemeralCert.ExpireTime)
	if parseErr != nil {
		return nil, time.Time{}, &APIError{Kind: KindAdminAPIFailed, Op: "parse certificate expiration", Conn: req.ConnName, Err: parseErr}
	}
	return []byte(out.EphemeralCert.Cert), expiration, nil
}

func (r *Repository) doJSON(ctx context.Context, method, url string, token *oauth2.Token, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	token.SetAuthHeader(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &httpStatusError{statusCode: resp.StatusCode, err: fmt.Errorf("admin api returned status %d", resp.StatusCode)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// httpStatusError carries the admin API's HTTP status code through to
// classify, which maps it onto the Kind taxonomy spec.md §4.3 requires
// (403 -> InstanceNotAuthorized, 404 -> InstanceNotFound).
type httpStatusError struct {
	statusCode int
	err        error
}

func (e *httpStatusError) Error() string { return e.err.Error() }
func (e *httpStatusError) Unwrap() error { return e.err }

func (r *Repository) classify(conn, op string, err error) error {
	kind := KindAdminAPIFailed
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.statusCode {
		case http.StatusForbidden:
			kind = KindInstanceNotAuthorized
		case http.StatusNotFound:
			kind = KindInstanceNotFound
		}
	}
	return &APIError{Kind: kind, Op: op, Conn: conn, Err: err}
}
