package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// FileSource reads a service account JSON key from a local path and
// rebuilds its token source whenever the file changes on disk, using
// fsnotify the same way the teacher's internal/config.Watcher watches its
// configuration file for hot reload. This is the source a key-rotation
// sidecar that rewrites the key file in place would pair with.
type FileSource struct {
	Path          string
	Scopes        []string
	Logger        *zap.Logger
	DebounceDelay time.Duration
}

// NewFileSource builds a FileSource for path.
func NewFileSource(path string, scopes ...string) *FileSource {
	return &FileSource{Path: path, Scopes: scopes, DebounceDelay: 100 * time.Millisecond}
}

// TokenSource implements Source. The returned oauth2.TokenSource stays
// valid for the lifetime of ctx: once ctx is done, the background watcher
// goroutine exits and the file stops being re-read.
func (s *FileSource) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reloading := &reloadingTokenSource{}
	if err := reloading.reload(s.Path, s.Scopes); err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(s.Path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: watch service account key file: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	debounce := s.DebounceDelay
	go func() {
		defer watcher.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					if err := reloading.reload(s.Path, s.Scopes); err != nil {
						logger.Warn("failed to reload service account key file",
							zap.String("path", s.Path), zap.Error(err))
					} else {
						logger.Info("reloaded service account key file", zap.String("path", s.Path))
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("service account key file watch error", zap.Error(err))
			}
		}
	}()

	return reloading, nil
}

// reloadingTokenSource swaps out its underlying token source whenever the
// key file it was built from changes, guarded by a mutex so Token can be
// called concurrently with a reload.
type reloadingTokenSource struct {
	mu   sync.RWMutex
	base oauth2.TokenSource
}

func (r *reloadingTokenSource) reload(path string, scopes []string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cloudsqlconn: read service account key file: %w", err)
	}
	var key ServiceAccountKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return fmt.Errorf("cloudsqlconn: decode service account key file: %w", err)
	}

	jwtSource := NewJWTSource(&key, scopes...)
	base, err := jwtSource.TokenSource(context.Background())
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.base = base
	r.mu.Unlock()
	return nil
}

func (r *reloadingTokenSource) Token() (*oauth2.Token, error) {
	r.mu.RLock()
	base := r.base
	r.mu.RUnlock()
	return base.Token()
}
