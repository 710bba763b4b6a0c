package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// LocalStore serves blobs from a single root directory. Keys are
// slash-separated relative paths; traversal outside the root is rejected.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	full := filepath.Join(s.root, clean)
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) && full != s.root {
		return "", fmt.Errorf("key escapes blob root: %q", key)
	}
	return full, nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) bool {
	p, err := s.path(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func (s *LocalStore) Size(ctx context.Context, key string) (int64, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// MimeType sniffs the first 512 bytes of the blob. The result reflects
// content only, never the key's extension, so callers can compare it
// against what the extension claims.
func (s *LocalStore) MimeType(ctx context.Context, key string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

func (s *LocalStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Write stores the blob atomically. Each writer gets its own pending
// file, so concurrent writes to the same key never interleave and a
// reader only ever sees a fully committed blob.
func (s *LocalStore) Write(ctx context.Context, key string, r io.Reader) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	pending, err := renameio.NewPendingFile(p)
	if err != nil {
		return fmt.Errorf("create pending blob: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, r); err != nil {
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	// fsync + rename, so a crash leaves either the old blob or the new one.
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit blob %q: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) DeletePrefix(ctx context.Context, prefix string) error {
	p, err := s.path(prefix)
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}

func (s *LocalStore) ResolveLocalPath(ctx context.Context, key string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	return p, nil
}
