package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBuildInfo overrides the ldflags variables for a test and restores them.
func setBuildInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = origVersion, origCommit, origDate })
	Version, Commit, Date = version, commit, date
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestInfo_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"version", "commit", "date", "go_version", "platform"} {
		assert.Contains(t, fields, key)
	}
}

func TestString(t *testing.T) {
	t.Run("dev build omits commit", func(t *testing.T) {
		setBuildInfo(t, "dev", "unknown", "unknown")
		s := String()
		assert.Contains(t, s, "roomrec version dev")
		assert.NotContains(t, s, "commit:")
	})

	t.Run("release build includes short commit", func(t *testing.T) {
		setBuildInfo(t, "1.4.0", "0123456789abcdef", "2026-08-26T00:00:00Z")
		s := String()
		assert.Contains(t, s, "roomrec version 1.4.0")
		assert.Contains(t, s, "commit: 01234567")
		assert.NotContains(t, s, "0123456789abcdef")
	})
}

func TestShort(t *testing.T) {
	setBuildInfo(t, "1.4.0", "0123456789abcdef", "unknown")
	assert.Equal(t, "roomrec 1.4.0 (01234567)", Short())

	setBuildInfo(t, "dev", "unknown", "unknown")
	assert.Equal(t, "roomrec dev", Short())

	// Truncating a short SHA would panic; it is left out instead.
	setBuildInfo(t, "dev", "abc", "unknown")
	assert.Equal(t, "roomrec dev", Short())
}

func TestUserAgent(t *testing.T) {
	setBuildInfo(t, "1.4.0", "unknown", "unknown")
	assert.Equal(t, "roomrec/1.4.0", UserAgent())
}
