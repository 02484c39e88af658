package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when no blob exists under a key.
var ErrNotFound = errors.New("blob not found")

const metaSuffix = ".meta.json"

// Metadata is caller-supplied information stored alongside a blob.
type Metadata map[string]string

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists blobs and issues time-limited URLs for them.
type Store interface {
	Put(ctx context.Context, data []byte, key string, meta Metadata) (string, error)
	Get(ctx context.Context, key string) ([]byte, *Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) (SignedURL, error)
	Resolve(token string) (string, error)
	RefreshURL(token string) (SignedURL, error)
}

// FileStore keeps blobs as files under a root directory with a JSON
// metadata sidecar per blob.
type FileStore struct {
	root   string
	signer *Signer
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, signer *Signer) (*FileStore, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	return &FileStore{root: root, signer: signer}, nil
}

// CleanKey normalizes a key to a relative slash path and rejects keys that
// would escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", fmt.Errorf("blob key cannot be empty")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") || strings.HasSuffix(cleaned, metaSuffix) {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return cleaned, nil
}

func (s *FileStore) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data under key and returns the normalized key. Existing blobs
// are replaced.
func (s *FileStore) Put(ctx context.Context, data []byte, key string, meta Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	dest := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	if err := writeFileAtomic(dest, data); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", key, err)
	}

	obj := Object{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: meta["content_type"],
		Metadata:    meta,
		CreatedAt:   time.Now().UTC(),
	}
	sidecar, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata for %s: %w", key, err)
	}
	if err := writeFileAtomic(dest+metaSuffix, sidecar); err != nil {
		return "", fmt.Errorf("failed to write metadata for %s: %w", key, err)
	}

	return key, nil
}

// Get reads a blob and its metadata.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, *Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	key, err := CleanKey(key)
	if err != nil {
		return nil, nil, err
	}

	dest := s.pathFor(key)
	data, err := os.ReadFile(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}

	obj := &Object{Key: key, Size: int64(len(data))}
	if sidecar, err := os.ReadFile(dest + metaSuffix); err == nil {
		if err := json.Unmarshal(sidecar, obj); err != nil {
			log.Printf("[STORAGE] Ignoring unreadable metadata for %s: %v", key, err)
		}
	}
	return data, obj, nil
}

// Delete removes a blob and its metadata. Deleting a missing blob is not an error.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	dest := s.pathFor(key)
	for _, p := range []string{dest, dest + metaSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

// URL issues a time-limited URL for key.
func (s *FileStore) URL(key string) (SignedURL, error) {
	key, err := CleanKey(key)
	if err != nil {
		return SignedURL{}, err
	}
	return s.signer.Sign(key)
}

// Resolve returns the key named by a URL token.
func (s *FileStore) Resolve(token string) (string, error) {
	return s.signer.Verify(token)
}

// RefreshURL regenerates a URL from an expired (but authentic) token.
func (s *FileStore) RefreshURL(token string) (SignedURL, error) {
	return s.signer.Refresh(token)
}

func writeFileAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
