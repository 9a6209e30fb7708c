package credentials

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"
)

// ServiceAccountKey is the subset of a Google service account JSON key
// file this package needs to mint signed JWT assertions.
type ServiceAccountKey struct {
	ClientEmail   string `json:"client_email"`
	PrivateKeyPEM string `json:"private_key"`
	PrivateKeyID  string `json:"private_key_id"`
	TokenURI      string `json:"token_uri"`
}

// DefaultTokenURI is used when a ServiceAccountKey omits one.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// DefaultScope grants access to the Cloud SQL Admin API.
const DefaultScope = "https://www.googleapis.com/auth/sqlservice.admin"

// JWTSource signs a service-account JWT assertion (RFC 7523) with
// lestrrat-go/jwx and exchanges it for a bearer token, the standard
// machine-to-machine auth flow Cloud SQL connectors use in production
// (as opposed to the interactive flows golang.org/x/oauth2's own helpers
// are built around).
type JWTSource struct {
	Key        *ServiceAccountKey
	Scopes     []string
	HTTPClient *http.Client
}

// NewJWTSource builds a JWTSource for key, requesting scopes (DefaultScope
// if none given).
func NewJWTSource(key *ServiceAccountKey, scopes ...string) *JWTSource {
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}
	return &JWTSource{Key: key, Scopes: scopes, HTTPClient: http.DefaultClient}
}

// TokenSource implements Source.
func (s *JWTSource) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	priv, err := parseRSAPrivateKeyPEM(s.Key.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: parse service account private key: %w", err)
	}

	uri := s.Key.TokenURI
	if uri == "" {
		uri = DefaultTokenURI
	}

	httpClient := s.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	base := &jwtAssertionTokenSource{
		email:      s.Key.ClientEmail,
		keyID:      s.Key.PrivateKeyID,
		privateKey: priv,
		scopes:     s.Scopes,
		tokenURI:   uri,
		httpClient: httpClient,
		ctx:        ctx,
	}
	return cached(base), nil
}

// jwtAssertionTokenSource mints a fresh RFC 7523 JWT bearer assertion and
// exchanges it every time Token is called; oauth2.ReuseTokenSource is
// responsible for not calling it more often than the token's lifetime
// requires.
type jwtAssertionTokenSource struct {
	email      string
	keyID      string
	privateKey *rsa.PrivateKey
	scopes     []string
	tokenURI   string
	httpClient *http.Client
	ctx        context.Context
}

func (j *jwtAssertionTokenSource) Token() (*oauth2.Token, error) {
	assertion, err := j.signAssertion()
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: sign jwt assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(j.ctx, http.MethodPost, j.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: exchange jwt assertion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudsqlconn: token endpoint returned status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken: out.AccessToken,
		TokenType:   out.TokenType,
		Expiry:      time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}

func (j *jwtAssertionTokenSource) signAssertion() (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Issuer(j.email).
		Subject(j.email).
		Audience([]string{j.tokenURI}).
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Claim("scope", strings.Join(j.scopes, " ")).
		Build()
	if err != nil {
		return "", err
	}

	key, err := jwk.FromRaw(j.privateKey)
	if err != nil {
		return "", err
	}
	if j.keyID != "" {
		_ = key.Set(jwk.KeyIDKey, j.keyID)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func parseRSAPrivateKeyPEM(data string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}
