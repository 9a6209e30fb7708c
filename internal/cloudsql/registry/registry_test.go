package registry

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/ratelimit"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/refresh"
)

type noopTokenSource struct{}

func (noopTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "unused"}, nil
}

func TestConnectRequiresInstance(t *testing.T) {
	r := New(noopTokenSource{}, nil, nil)
	defer r.Close()

	_, err := r.Connect(context.Background(), DialConfig{})
	assert.ErrorIs(t, err, ErrInstanceRequired)
}

func TestConnectRejectsInvalidInstanceName(t *testing.T) {
	r := New(noopTokenSource{}, nil, nil)
	defer r.Close()

	_, err := r.Connect(context.Background(), DialConfig{Instance: "not-a-valid-name"})
	require.Error(t, err)
	var apiErr *adminapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, adminapi.KindInvalidInstanceName, apiErr.Kind)
}

func TestSetApplicationNameGuard(t *testing.T) {
	r := New(noopTokenSource{}, nil, nil)
	defer r.Close()

	require.NoError(t, r.SetApplicationName("myapp/1.0"))
	assert.Equal(t, "myapp/1.0", r.ApplicationName())

	r.used.Store(true)
	err := r.SetApplicationName("otherapp/2.0")
	assert.ErrorIs(t, err, ErrAlreadyInitialised)
	// The rejected call must not have taken effect.
	assert.Equal(t, "myapp/1.0", r.ApplicationName())
}

func TestConnectUnixSocketPassThrough(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "inst.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	r := New(noopTokenSource{}, nil, nil)
	defer r.Close()

	conn, err := r.Connect(context.Background(), DialConfig{
		Instance:       "proj:region:inst",
		UnixSocketPath: socketPath,
	})
	require.NoError(t, err)
	conn.Close()
}

func TestSettersOverrideDefaultsBeforeFirstCacheOnly(t *testing.T) {
	r := New(noopTokenSource{}, nil, nil)
	defer r.Close()

	r.SetRefreshTimeout(5 * time.Second)
	r.SetGetDataTimeout(2 * time.Second)
	r.SetMinRefreshInterval(time.Second)

	assert.Equal(t, 5*time.Second, r.refreshTimeout)
	assert.Equal(t, 2*time.Second, r.getDataTimeout)
	assert.Equal(t, time.Second, r.minRefreshInterval)

	// Zero durations are ignored, leaving the previous value in place.
	r.SetRefreshTimeout(0)
	assert.Equal(t, 5*time.Second, r.refreshTimeout)
}

func TestDefaultSettersMatchPackageDefaults(t *testing.T) {
	r := New(noopTokenSource{}, nil, nil)
	defer r.Close()

	assert.Equal(t, refresh.DefaultFetchTimeout, r.refreshTimeout)
	assert.Equal(t, ratelimit.DefaultMinDelay, r.minRefreshInterval)
}
