// Package blob stores attachment bytes write-once-by-key and hands back a
// retrievable URL. The rest of the server treats the resulting URL and
// content type as opaque strings.
package blob

import (
	"context"
	"io"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
)

// keyPrefix namespaces all Speakly objects inside the bucket.
const keyPrefix = "speakly"

// Store is an object store for attachments. Put writes the object under
// key exactly once and returns the URL it is retrievable at; writing an
// existing key is an error.
type Store interface {
	Put(ctx context.Context, key, contentType string, data io.Reader) (string, error)
}

// NewObjectKey builds a fresh object key for an uploaded file. The ULID
// component makes keys unique and time-sortable; the sanitized original
// name keeps downloads recognizable.
func NewObjectKey(filename string) string {
	return keyPrefix + "/" + ulid.Make().String() + "_" + sanitizeFilename(filename)
}

// sanitizeFilename strips path components and characters that have no
// business in an object key.
func sanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case r == ' ':
			return '_'
		default:
			return r
		}
	}, name)

	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}
