// Package blob implements content storage for clip bytes. The catalog only
// ever needs two operations from its content store: write a blob under a
// caller-supplied key, and turn a key into the externally resolvable address
// (base URL + key). DiskStore provides both on the local filesystem and is
// fronted by the HTTP layer, which serves the stored bytes back under the
// same base URL.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Store is the content-store contract the catalog service depends on.
type Store interface {
	// Put durably writes data under key. Keys are write-once: a second Put
	// for an existing key leaves the stored bytes untouched, so callers that
	// derive equal keys for distinct payloads alias to the first payload.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// URL returns the externally resolvable address for key.
	URL(key string) string
}

// ErrBadKey is returned when a storage key would escape the store root or is
// otherwise unusable as a relative path.
var ErrBadKey = errors.New("invalid blob key")

// DiskStore persists blobs as plain files under a root directory. Writes are
// atomic (temp file + rename) and append-only: existing keys are never
// truncated or rewritten, which is what makes stored clip addresses stable.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates a DiskStore rooted at dir. baseURL is the public
// prefix under which the HTTP layer serves the stored bytes; a trailing
// slash is appended if missing so URL(key) is always prefix+key.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("blob: root directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &DiskStore{root: dir, baseURL: baseURL}, nil
}

// Put writes data to root/key. The parent directory is created on demand
// (keys are path-like: community/file.gif). If the key already exists the
// call is a no-op success, preserving blob immutability. contentType is
// accepted for interface compatibility; the fixed clip media type is
// reapplied by the serving layer.
func (s *DiskStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.resolve(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		log.Debug().Str("key", key).Msg("blob already present, keeping existing bytes")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return err
	}

	log.Debug().
		Str("key", key).
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Msg("blob stored")
	return nil
}

// URL returns baseURL + key.
func (s *DiskStore) URL(key string) string {
	return s.baseURL + key
}

// Open returns a read handle for an existing key. Used by the HTTP layer to
// stream clip bytes back to clients. Returns os.ErrNotExist-wrapping errors
// for absent keys.
func (s *DiskStore) Open(key string) (*os.File, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// resolve maps key to an absolute path under root, rejecting keys that are
// absolute or traverse out of the store.
func (s *DiskStore) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
