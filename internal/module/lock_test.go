package module

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockFileRecordAndLookup(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mlld.lock.yaml")

	lf, err := LoadLockFile(path)
	require.NoError(t, err)

	_, ok := lf.Lookup("@alice/greet")
	assert.False(t, ok)

	require.NoError(t, lf.Record("@alice/greet", LockEntry{Version: "1.0.0", Resolved: "https://registry/greet", Integrity: "sha256:abc"}))

	entry, ok := lf.Lookup("@alice/greet")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", entry.Version)
}

func TestLockFilePersistsAcrossInstances(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mlld.lock.yaml")

	lf, err := LoadLockFile(path)
	require.NoError(t, err)
	require.NoError(t, lf.Record("@alice/greet", LockEntry{Version: "1.2.0"}))

	reloaded, err := LoadLockFile(path)
	require.NoError(t, err)
	entry, ok := reloaded.Lookup("@alice/greet")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", entry.Version)
}

func TestLockFileRejectsVersionDowngrade(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mlld.lock.yaml")

	lf, err := LoadLockFile(path)
	require.NoError(t, err)
	require.NoError(t, lf.Record("@alice/greet", LockEntry{Version: "2.0.0"}))

	err = lf.Record("@alice/greet", LockEntry{Version: "1.0.0"})
	assert.Error(t, err)

	entry, _ := lf.Lookup("@alice/greet")
	assert.Equal(t, "2.0.0", entry.Version, "downgrade attempt must not overwrite the pinned version")
}

func TestLockFileAllowsUpgrade(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mlld.lock.yaml")

	lf, err := LoadLockFile(path)
	require.NoError(t, err)
	require.NoError(t, lf.Record("@alice/greet", LockEntry{Version: "1.0.0"}))
	require.NoError(t, lf.Record("@alice/greet", LockEntry{Version: "1.1.0"}))

	entry, _ := lf.Lookup("@alice/greet")
	assert.Equal(t, "1.1.0", entry.Version)
}
