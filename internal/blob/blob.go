// Package blob abstracts file storage behind a key-addressed interface so
// pipeline stages never touch the filesystem layout directly. Subprocesses
// need real paths, hence ResolveLocalPath.
package blob

import (
	"context"
	"io"
)

// Store is the storage boundary consumed by every pipeline stage.
type Store interface {
	Exists(ctx context.Context, key string) bool
	Size(ctx context.Context, key string) (int64, error)
	// MimeType reports the content-sniffed type of the blob's leading
	// bytes, independent of the key's extension.
	MimeType(ctx context.Context, key string) (string, error)
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Write(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under the given key prefix.
	// Terminal-failure cleanup uses this to drop asset-scoped directories.
	DeletePrefix(ctx context.Context, prefix string) error
	// ResolveLocalPath maps a key to an absolute filesystem path suitable
	// for subprocess argv construction. The parent directory is created.
	ResolveLocalPath(ctx context.Context, key string) (string, error)
}
