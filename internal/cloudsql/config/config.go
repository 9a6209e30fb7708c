// Package config holds the process-wide, environment- and file-derived
// settings the registry and its caches read at construction time: the
// legacy forced-unix-socket override, Unix-socket path resolution, and
// optional static defaults for worker pool size, IP type preference, and
// refresh timeouts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
)

// ForceUnixSocketEnv is the deprecated environment variable that, if set
// to any non-empty value, routes every connection through
// /cloudsql/<instance> instead of the TLS path (spec.md §6).
const ForceUnixSocketEnv = "CLOUD_SQL_FORCE_UNIX_SOCKET"

// Defaults holds static, process-wide settings normally sourced from an
// optional YAML file, following the teacher's internal/config/yaml_loader.go.
type Defaults struct {
	WorkerPoolSize     int              `yaml:"worker_pool_size"`
	IPTypePreference   []string         `yaml:"ip_type_preference"`
	RefreshTimeout     time.Duration    `yaml:"refresh_timeout"`
	GetDataTimeout     time.Duration    `yaml:"get_data_timeout"`
	MinRefreshInterval time.Duration    `yaml:"min_refresh_interval"`
}

// DefaultDefaults returns the built-in settings used when no YAML file is
// loaded.
func DefaultDefaults() *Defaults {
	return &Defaults{
		WorkerPoolSize:     8,
		IPTypePreference:   []string{"PRIMARY"},
		RefreshTimeout:     60 * time.Second,
		GetDataTimeout:     30 * time.Second,
		MinRefreshInterval: 30 * time.Second,
	}
}

// Validate checks that Defaults describes a usable configuration.
func (d *Defaults) Validate() error {
	if d.WorkerPoolSize <= 0 {
		return fmt.Errorf("cloudsqlconn: worker_pool_size must be positive")
	}
	if len(d.IPTypePreference) == 0 {
		return fmt.Errorf("cloudsqlconn: ip_type_preference must not be empty")
	}
	return nil
}

// IPTypes converts the YAML string list into adminapi.IPType values.
func (d *Defaults) IPTypes() []adminapi.IPType {
	out := make([]adminapi.IPType, len(d.IPTypePreference))
	for i, s := range d.IPTypePreference {
		out[i] = adminapi.IPType(s)
	}
	return out
}

// LoadDefaults reads Defaults from a YAML file at path, filling in any
// field the file omits from DefaultDefaults.
func LoadDefaults(path string) (*Defaults, error) {
	d := DefaultDefaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("cloudsqlconn: parse config file %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// ForceUnixSocket reports whether CLOUD_SQL_FORCE_UNIX_SOCKET is set.
func ForceUnixSocket() bool {
	v, ok := os.LookupEnv(ForceUnixSocketEnv)
	return ok && v != ""
}

// UnixSocketPath resolves the effective Unix-domain-socket path for an
// instance given an explicit path and suffix. Both an empty string and an
// unset suffix normalize to "no suffix" (spec.md §9 Open Question (b)):
// there is no semantic difference between a caller explicitly passing ""
// and a caller never setting the suffix field at all.
func UnixSocketPath(basePath, instance, suffix string) string {
	if basePath != "" {
		if suffix == "" {
			return basePath
		}
		return basePath + suffix
	}
	return filepath.Join("/cloudsql", instance+suffix)
}
