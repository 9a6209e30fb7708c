package cloudsqlconn

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type staticToken struct{}

func (staticToken) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "unused"}, nil
}

func TestNewDialerWithStaticTokenSource(t *testing.T) {
	d, err := NewDialer(context.Background(), WithTokenSource(staticToken{}))
	require.NoError(t, err)
	defer d.Close()
}

func TestDialerUnixSocketPassThrough(t *testing.T) {
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

	d, err := NewDialer(context.Background(), WithTokenSource(staticToken{}))
	require.NoError(t, err)
	defer d.Close()

	conn, err := d.Dial(context.Background(), "proj:region:inst", WithUnixSocket(socketPath, ""))
	require.NoError(t, err)
	conn.Close()
}

func TestDialerSetApplicationNameBeforeFirstDial(t *testing.T) {
	d, err := NewDialer(context.Background(), WithTokenSource(staticToken{}))
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.SetApplicationName("myapp/1.0"))
}

func TestNewDialerWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	contents := "worker_pool_size: 3\nip_type_preference: [\"PRIVATE\", \"PRIMARY\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	d, err := NewDialer(context.Background(), WithTokenSource(staticToken{}), WithConfigFile(path))
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, 2, len(d.defaultTypes))
}

func TestNewDialerWithInvalidConfigFile(t *testing.T) {
	_, err := NewDialer(context.Background(), WithTokenSource(staticToken{}), WithConfigFile("/nonexistent/defaults.yaml"))
	require.Error(t, err)
}
