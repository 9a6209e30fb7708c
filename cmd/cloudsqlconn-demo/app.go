package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/cloudsqlconn"
)

// application holds the demo's components: the shared Dialer and the set
// of instance connection names it has been asked to keep warm.
type application struct {
	dialer    *cloudsqlconn.Dialer
	instances []string

	mu       sync.Mutex
	lastDial map[string]time.Time
	lastErr  map[string]string
}

func initApplication(flags cliFlags, logger *zap.Logger) *application {
	opts := []cloudsqlconn.Option{cloudsqlconn.WithLogger(logger)}

	if flags.credFile != "" {
		opts = append(opts, cloudsqlconn.WithCredentialsFile(flags.credFile))
	}
	if flags.adminEndpoint != "" {
		opts = append(opts, cloudsqlconn.WithAdminAPIEndpoint(flags.adminEndpoint))
	}

	dialer, err := cloudsqlconn.NewDialer(context.Background(), opts...)
	if err != nil {
		logger.Fatal("failed to create dialer", zap.Error(err))
	}

	return &application{
		dialer:    dialer,
		instances: splitInstances(flags.instances),
		lastDial:  make(map[string]time.Time),
		lastErr:   make(map[string]string),
	}
}

// warmInstances dials every configured instance once up front so their
// refresh loops start immediately rather than on first real use, mirroring
// how a long-lived connection-pooled service would behave.
func (a *application) warmInstances(ctx context.Context, logger *zap.Logger) {
	for _, instance := range a.instances {
		instance := instance
		go func() {
			dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			conn, err := a.dialer.Dial(dialCtx, instance)
			a.recordDial(instance, err)
			if err != nil {
				logger.Warn("warm dial failed", zap.String("instance", instance), zap.Error(err))
				return
			}
			logger.Info("warm dial succeeded", zap.String("instance", instance))
			_ = conn.Close()
		}()
	}
}

func (a *application) recordDial(instance string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastDial[instance] = time.Now()
	if err != nil {
		a.lastErr[instance] = err.Error()
	} else {
		delete(a.lastErr, instance)
	}
}

type instanceStatus struct {
	Instance string `json:"instance"`
	LastDial string `json:"last_dial,omitempty"`
	LastErr  string `json:"last_error,omitempty"`
}

func (a *application) snapshot() []instanceStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]instanceStatus, 0, len(a.instances))
	for _, instance := range a.instances {
		s := instanceStatus{Instance: instance}
		if t, ok := a.lastDial[instance]; ok {
			s.LastDial = t.Format(time.RFC3339)
		}
		if e, ok := a.lastErr[instance]; ok {
			s.LastErr = e
		}
		out = append(out, s)
	}
	return out
}
