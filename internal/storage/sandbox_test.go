package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)
	return sb
}

func TestNewSandbox(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")

	sb, err := NewSandbox(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(sb.BaseDir()))
}

func TestSandbox_ResolvePath(t *testing.T) {
	sb := setupTestSandbox(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple file", "output.mp4", false},
		{"room subdirectory", "1001/output.mp4", false},
		{"deep nesting", "a/b/c/output.mp4", false},
		{"current dir", ".", false},
		{"hidden file", ".hidden", false},
		{"dot dot prefix in name", "..output", false},
		{"parent escape", "../escape.mp4", true},
		{"nested parent escape", "1001/../../escape.mp4", true},
		{"absolute path", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := sb.ResolvePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "escapes sandbox")
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(resolved, sb.BaseDir()))
		})
	}
}

func TestSandbox_MkdirAllAndExists(t *testing.T) {
	sb := setupTestSandbox(t)

	require.NoError(t, sb.MkdirAll("1001/nested"))

	exists, err := sb.Exists("1001/nested")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = sb.Exists("9999")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = sb.Exists("../outside")
	assert.Error(t, err)
}

func TestSandbox_Remove(t *testing.T) {
	sb := setupTestSandbox(t)

	path, err := sb.ResolvePath("stale.sdp")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("v=0\r\n"), 0o644))

	require.NoError(t, sb.Remove("stale.sdp"))

	exists, err := sb.Exists("stale.sdp")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Error(t, sb.Remove("stale.sdp"), "removing twice errors")
	assert.Error(t, sb.Remove("../outside.sdp"))
}

func TestSandbox_StatAndSize(t *testing.T) {
	sb := setupTestSandbox(t)

	path, err := sb.ResolvePath("segment.ts")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, make([]byte, 188), 0o644))

	info, err := sb.Stat("segment.ts")
	require.NoError(t, err)
	assert.Equal(t, "segment.ts", info.Name())

	size, err := sb.Size("segment.ts")
	require.NoError(t, err)
	assert.Equal(t, int64(188), size)

	_, err = sb.Size("missing.ts")
	assert.Error(t, err)
}
