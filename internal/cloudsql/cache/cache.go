// Package cache implements ConnectionInfoCache (spec.md §4.5): the
// per-instance facade combining a Refresher with preferred-IP-type
// selection and socket construction, so a caller never has to reach past
// it into the refresh machinery directly.
package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/refresh"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/socket"
)

// DefaultGetDataTimeout bounds how long Dial waits for a usable
// InstanceData before giving up.
const DefaultGetDataTimeout = 30 * time.Second

// IPTypeNotAvailableError is returned when an instance's InstanceData does
// not carry an address of any of the requested IP types, e.g. asking for
// a private IP on an instance that only has a public one provisioned.
type IPTypeNotAvailableError struct {
	Conn       string
	Preference []adminapi.IPType
}

func (e *IPTypeNotAvailableError) Error() string {
	return fmt.Sprintf("cloudsqlconn: instance %s has no IP address of type %v", e.Conn, e.Preference)
}

// Cache is ConnectionInfoCache: one instance's Refresher plus the IP
// selection and socket-dialing steps a Dial call needs on top of it.
type Cache struct {
	connName string
	refresher *refresh.Refresher
	builder   *socket.Builder
	preference []adminapi.IPType
	getDataTimeout time.Duration
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithGetDataTimeout overrides how long Dial waits for a usable
// InstanceData before giving up (DefaultGetDataTimeout otherwise).
func WithGetDataTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.getDataTimeout = d
		}
	}
}

// New wraps refresher for connName, preferring IP types in preference
// order (first available wins) when dialing.
func New(connName string, refresher *refresh.Refresher, preference []adminapi.IPType, opts ...Option) *Cache {
	if len(preference) == 0 {
		preference = []adminapi.IPType{adminapi.IPTypePrimary}
	}
	c := &Cache{
		connName:       connName,
		refresher:      refresher,
		builder:        socket.NewBuilder(),
		preference:     preference,
		getDataTimeout: DefaultGetDataTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SSLData returns the current InstanceData, waiting for a refresh to
// complete if none has published yet.
func (c *Cache) SSLData(ctx context.Context) (*adminapi.InstanceData, error) {
	return c.refresher.GetData(ctx, c.getDataTimeout)
}

// PreferredIP returns the first address among this Cache's preference
// order found in data's IPAddresses.
func (c *Cache) PreferredIP(data *adminapi.InstanceData) (string, error) {
	if ip, ok := data.IP(c.preference); ok {
		return ip, nil
	}
	return "", &IPTypeNotAvailableError{Conn: c.connName, Preference: c.preference}
}

// Dial fetches the current InstanceData, selects a preferred IP, and
// opens a mutual-TLS socket to it.
func (c *Cache) Dial(ctx context.Context) (net.Conn, error) {
	data, err := c.SSLData(ctx)
	if err != nil {
		return nil, err
	}
	ip, err := c.PreferredIP(data)
	if err != nil {
		return nil, err
	}
	return c.builder.Dial(ctx, ip, data)
}

// ForceRefresh requests an immediate refresh of this instance's
// InstanceData, bypassing the normal refresh schedule.
func (c *Cache) ForceRefresh() {
	c.refresher.ForceRefresh()
}

// Close releases this Cache's Refresher.
func (c *Cache) Close() {
	c.refresher.Close()
}
