package credentials

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func generateTestKeyPEM(t *testing.T) string {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(priv)
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}))
}

func TestJWTSourceSignsAndExchangesAssertion(t *testing.T) {
	var receivedAssertion string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.FormValue("grant_type"))
		receivedAssertion = r.FormValue("assertion")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fake-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	key := &ServiceAccountKey{
		ClientEmail:   "connector@example.iam.gserviceaccount.com",
		PrivateKeyPEM: generateTestKeyPEM(t),
		PrivateKeyID:  "key-1",
		TokenURI:      server.URL,
	}

	source := NewJWTSource(key, "https://www.googleapis.com/auth/sqlservice.admin")
	ts, err := source.TokenSource(context.Background())
	require.NoError(t, err)

	token, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, "fake-access-token", token.AccessToken)

	require.NotEmpty(t, receivedAssertion)
	parsed, err := jwt.Parse([]byte(receivedAssertion), jwt.WithVerify(false))
	require.NoError(t, err)
	require.Equal(t, key.ClientEmail, parsed.Issuer())
	require.Equal(t, key.ClientEmail, parsed.Subject())
}

func TestFactoryRejectsAmbiguousConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{CredentialsFile: "a", TokenSource: nil, Vault: &VaultConfig{}})
	require.Error(t, err)
}
