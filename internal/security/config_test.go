package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicyFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPolicyFileParsesRulesAndGuards(t *testing.T) {
	t.Parallel()
	path := writePolicyFile(t, `
name: default
allow:
  - "fs:read:**"
deny:
  - "fs:write:/etc/**"
autoverify: true
verifyTemplate: "custom"
guards:
  - name: checkWrite
    forOp: "fs:write"
`)

	policy, err := LoadPolicyFile(path)
	require.NoError(t, err)

	assert.Equal(t, "default", policy.Name)
	assert.True(t, policy.Autoverify)
	assert.Equal(t, "custom", policy.VerifyTemplate)
	require.Len(t, policy.Rules, 2)
	assert.Equal(t, "fs:read:**", policy.Rules[0].Pattern)
	assert.True(t, policy.Rules[0].Allow)
	assert.Equal(t, "fs:write:/etc/**", policy.Rules[1].Pattern)
	assert.False(t, policy.Rules[1].Allow)

	require.Contains(t, policy.Guards, "fs:write")
	assert.Equal(t, "checkWrite", policy.Guards["fs:write"].Name)
}

func TestLoadPolicyFileRejectsGuardMissingForOp(t *testing.T) {
	t.Parallel()
	path := writePolicyFile(t, `
name: bad
guards:
  - name: onlyName
`)
	_, err := LoadPolicyFile(path)
	assert.Error(t, err)
}

func TestLoadPolicyFileMissingPath(t *testing.T) {
	t.Parallel()
	_, err := LoadPolicyFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
