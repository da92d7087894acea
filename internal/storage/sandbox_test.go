package storage

import (
	"bytes"
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
	sandboxDir := filepath.Join(t.TempDir(), "sandbox")

	sb, err := NewSandbox(sandboxDir)
	require.NoError(t, err)

	info, err := os.Stat(sandboxDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(sb.BaseDir()))
}

func TestSandbox_ResolvePath(t *testing.T) {
	sb := setupTestSandbox(t)

	tests := []struct {
		name        string
		path        string
		shouldError bool
	}{
		{"simple file", "test.jpg", false},
		{"nested path", "subdir/test.jpg", false},
		{"current dir", ".", false},
		{"parent escape attempt", "../escape.jpg", true},
		{"nested parent escape", "subdir/../../escape.jpg", true},
		{"absolute path escape", "/etc/passwd", true},
		{"dot dot name", "..test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := sb.ResolvePath(tt.path)
			if tt.shouldError {
				assert.ErrorIs(t, err, ErrPathEscapes)
			} else {
				assert.NoError(t, err)
				assert.True(t, strings.HasPrefix(resolved, sb.BaseDir()))
			}
		})
	}
}

func TestSandbox_AtomicWriteReader(t *testing.T) {
	sb := setupTestSandbox(t)

	n, err := sb.AtomicWriteReader("nested/file.bin", bytes.NewReader([]byte("hello")), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	data, err := os.ReadFile(filepath.Join(sb.BaseDir(), "nested", "file.bin"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSandbox_AtomicWriteReader_Limit(t *testing.T) {
	sb := setupTestSandbox(t)

	_, err := sb.AtomicWriteReader("exact.bin", bytes.NewReader(make([]byte, 8)), 8)
	require.NoError(t, err)

	_, err = sb.AtomicWriteReader("big.bin", bytes.NewReader(make([]byte, 9)), 8)
	assert.ErrorIs(t, err, ErrTooLarge)

	exists, err := sb.Exists("big.bin")
	require.NoError(t, err)
	assert.False(t, exists)

	// No temporary files are left behind.
	entries, err := os.ReadDir(sb.BaseDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSandbox_RemoveAndExists(t *testing.T) {
	sb := setupTestSandbox(t)

	_, err := sb.AtomicWriteReader("a.txt", strings.NewReader("x"), 0)
	require.NoError(t, err)

	exists, err := sb.Exists("a.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, sb.Remove("a.txt"))
	require.NoError(t, sb.Remove("a.txt"))

	exists, err = sb.Exists("a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Error(t, sb.Remove("."))
}

func TestSandbox_PathTraversalAttempts(t *testing.T) {
	sb := setupTestSandbox(t)

	attacks := []string{
		"../../../etc/passwd",
		"subdir/../../../etc/passwd",
		"/absolute/path",
		"subdir/../../..",
		"subdir/./../../etc/passwd",
	}

	for _, attack := range attacks {
		t.Run(attack, func(t *testing.T) {
			_, err := sb.ResolvePath(attack)
			assert.Error(t, err, "path traversal should be blocked: %s", attack)
		})
	}
}
