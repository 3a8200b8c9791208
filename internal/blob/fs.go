package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps objects on the local filesystem and serves them via the
// configured public base URL. It is the development and single-node
// stand-in for an S3-compatible bucket behind a CDN.
type FSStore struct {
	root    string
	baseURL string
}

// NewFSStore creates a filesystem-backed object store rooted at root.
// Objects land at root/<key> and resolve to baseURL/<key>.
func NewFSStore(root, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &FSStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes the object. Keys are write-once: a second Put of the same
// key fails rather than overwriting.
func (s *FSStore) Put(ctx context.Context, key, contentType string, data io.Reader) (string, error) {
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}

	return s.baseURL + "/" + key, nil
}

// Root returns the directory objects are stored under, for the static
// file route that serves them back.
func (s *FSStore) Root() string {
	return s.root
}
