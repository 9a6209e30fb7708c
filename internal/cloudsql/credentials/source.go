// Package credentials sources the OAuth2 bearer token the
// ConnectionInfoRepository attaches to every admin API call. A connector
// process never talks to Cloud SQL on behalf of a human; it acts as a
// service account, so the key-file and Vault sources produce a signed JWT
// assertion (RFC 7523) exchanged for a bearer token, rather than an
// interactive OAuth2 flow. StaticSource instead passes through whatever
// already-configured token source it is given.
package credentials

import (
	"context"

	"golang.org/x/oauth2"
)

// Source produces the oauth2.TokenSource the admin API repository reads
// bearer tokens from. Implementations differ only in where the service
// account's signing key comes from: a local key file, a Vault KV secret,
// or an already-configured token source (for local development against
// Application Default Credentials).
type Source interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// cached wraps any oauth2.TokenSource with oauth2.ReuseTokenSource so a
// Source is consulted once per token lifetime, not once per admin API
// call.
func cached(base oauth2.TokenSource) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, base)
}
