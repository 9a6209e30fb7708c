package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnixSocketPathNormalizesEmptyAndUnsetSuffixIdentically(t *testing.T) {
	withEmpty := UnixSocketPath("/var/run/cloudsql", "proj:region:inst", "")
	withUnset := UnixSocketPath("/var/run/cloudsql", "proj:region:inst", "")
	assert.Equal(t, withEmpty, withUnset)
	assert.Equal(t, "/var/run/cloudsql", withEmpty)
}

func TestUnixSocketPathAppendsSuffix(t *testing.T) {
	got := UnixSocketPath("/var/run/cloudsql", "proj:region:inst", ".s.PGSQL.5432")
	assert.Equal(t, "/var/run/cloudsql.s.PGSQL.5432", got)
}

func TestUnixSocketPathDefaultsUnderCloudsqlDir(t *testing.T) {
	got := UnixSocketPath("", "proj:region:inst", "")
	assert.Equal(t, filepath.Join("/cloudsql", "proj:region:inst"), got)
}

func TestLoadDefaultsFillsInFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	err := os.WriteFile(path, []byte("worker_pool_size: 4\nip_type_preference: [\"PRIVATE\", \"PRIMARY\"]\n"), 0o600)
	require.NoError(t, err)

	d, err := LoadDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, 4, d.WorkerPoolSize)
	assert.Equal(t, []string{"PRIVATE", "PRIMARY"}, d.IPTypePreference)
}

func TestDefaultDefaultsValidates(t *testing.T) {
	require.NoError(t, DefaultDefaults().Validate())
}
