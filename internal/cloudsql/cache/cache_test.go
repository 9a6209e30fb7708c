package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/ratelimit"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/refresh"
)

func TestCachePreferredIPFallsBackThroughPreferenceOrder(t *testing.T) {
	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		return &adminapi.InstanceData{
			Expiration: time.Now().Add(4 * time.Hour),
			IPAddresses: map[adminapi.IPType]string{
				adminapi.IPTypePrivate: "10.1.2.3",
			},
		}, nil
	}
	r := refresh.New("proj:region:inst", op, ratelimit.New(time.Millisecond), func(f func()) { go f() })
	c := New("proj:region:inst", r, []adminapi.IPType{adminapi.IPTypePrimary, adminapi.IPTypePrivate})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := c.SSLData(ctx)
	require.NoError(t, err)

	ip, err := c.PreferredIP(data)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", ip)
}

func TestCachePreferredIPMissingTypeIsError(t *testing.T) {
	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		return &adminapi.InstanceData{
			Expiration:  time.Now().Add(4 * time.Hour),
			IPAddresses: map[adminapi.IPType]string{adminapi.IPTypePrivate: "10.1.2.3"},
		}, nil
	}
	r := refresh.New("proj:region:inst", op, ratelimit.New(time.Millisecond), func(f func()) { go f() })
	c := New("proj:region:inst", r, []adminapi.IPType{adminapi.IPTypePrimary})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := c.SSLData(ctx)
	require.NoError(t, err)

	_, err = c.PreferredIP(data)
	require.Error(t, err)
	var notAvail *IPTypeNotAvailableError
	require.ErrorAs(t, err, &notAvail)
}
