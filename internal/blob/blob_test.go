package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObjectKey(t *testing.T) {
	key := NewObjectKey("photo.png")
	assert.True(t, strings.HasPrefix(key, "speakly/"), key)
	assert.True(t, strings.HasSuffix(key, "_photo.png"), key)

	// Keys are unique even for identical filenames.
	assert.NotEqual(t, key, NewObjectKey("photo.png"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.png", "photo.png"},
		{"my photo.png", "my_photo.png"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\x\doc.pdf`, "doc.pdf"},
		{"", "file"},
		{"..", "file"},
		{"a\x00b.txt", "ab.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestFSStorePut(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root, "https://cdn.test/files/")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "speakly/abc_a.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/files/speakly/abc_a.txt", url)

	data, err := os.ReadFile(filepath.Join(root, "speakly", "abc_a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFSStorePutWriteOnce(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "https://cdn.test")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "speakly/k", "text/plain", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "speakly/k", "text/plain", strings.NewReader("second"))
	require.Error(t, err, "keys are write-once")
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "https://cdn.test")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../outside", "text/plain", strings.NewReader("x"))
	require.Error(t, err)

	_, err = s.Put(context.Background(), "/absolute", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
}
