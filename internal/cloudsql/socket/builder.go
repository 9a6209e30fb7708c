package socket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
)

// DefaultPort is the Cloud SQL server proxy's listening port.
const DefaultPort = 3307

// DefaultDialTimeout bounds the plain TCP dial before the TLS handshake.
const DefaultDialTimeout = 30 * time.Second

// DefaultKeepAlive matches the teacher's transport defaults for
// long-lived connections: short enough to detect a dead peer, long enough
// not to flood the network.
const DefaultKeepAlive = 30 * time.Second

// Builder dials a single Cloud SQL instance's server proxy over mutual
// TLS, implementing the SocketBuilder of spec.md §4.7.
type Builder struct {
	Port        int
	DialTimeout time.Duration
	KeepAlive   time.Duration

	// Dialer lets tests substitute a fake network; nil uses net.Dialer.
	Dialer func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewBuilder returns a Builder with the package defaults.
func NewBuilder() *Builder {
	return &Builder{
		Port:        DefaultPort,
		DialTimeout: DefaultDialTimeout,
		KeepAlive:   DefaultKeepAlive,
	}
}

// Dial opens a TCP connection to ip on Port, enables TCP keepalive and
// disables Nagle's algorithm (queries are latency-sensitive, not
// throughput-bound), then performs a TLS handshake verified against data.
func (b *Builder) Dial(ctx context.Context, ip string, data *adminapi.InstanceData) (net.Conn, error) {
	address := net.JoinHostPort(ip, fmt.Sprintf("%d", b.Port))

	rawConn, err := b.dialTCP(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: dial %s: %w", address, err)
	}

	if tcpConn, ok := rawConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(b.KeepAlive)
	}

	tlsConfig := ClientConfig(data.ClientCert, data.ServerCAPool, data.ServerName)
	tlsConn := tls.Client(rawConn, tlsConfig)

	handshakeCtx, cancel := context.WithTimeout(ctx, b.DialTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("cloudsqlconn: tls handshake with %s: %w", data.ServerName, err)
	}

	return tlsConn, nil
}

func (b *Builder) dialTCP(ctx context.Context, address string) (net.Conn, error) {
	if b.Dialer != nil {
		return b.Dialer(ctx, "tcp", address)
	}
	dialer := &net.Dialer{Timeout: b.DialTimeout, KeepAlive: b.KeepAlive}
	return dialer.DialContext(ctx, "tcp", address)
}
