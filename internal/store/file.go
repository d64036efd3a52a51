package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/flock"

	"github.com/stacklok/toolhive-roster/internal/roster"
)

const (
	// DefaultSaveRetries is the number of extra write attempts after a failed save
	DefaultSaveRetries = 3

	lockRetryDelay   = 25 * time.Millisecond
	initialSaveDelay = 20 * time.Millisecond
	maxSaveDelay     = 500 * time.Millisecond
)

// Option configures a FileStore
type Option func(*FileStore)

// WithEncoding forces the file encoding instead of inferring it from the extension
func WithEncoding(enc Encoding) Option {
	return func(s *FileStore) {
		if enc != "" {
			s.encoding = enc
		}
	}
}

// WithKeyAliases adds field name aliases recognised on read
func WithKeyAliases(aliases KeyAliases) Option {
	return func(s *FileStore) {
		s.aliases = s.aliases.Merge(aliases)
	}
}

// WithLocking enables or disables the cross-process lock file
func WithLocking(enabled bool) Option {
	return func(s *FileStore) {
		s.locking = enabled
	}
}

// WithSaveRetries sets how many times a failed write is retried
func WithSaveRetries(n int) Option {
	return func(s *FileStore) {
		if n >= 0 {
			s.saveRetries = n
		}
	}
}

// FileStore persists the registry as a single file on the local filesystem.
type FileStore struct {
	path        string
	encoding    Encoding
	aliases     KeyAliases
	locking     bool
	saveRetries int
}

// NewFileStore creates a file-backed store for the roster at path
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{
		path:        path,
		encoding:    EncodingForPath(path),
		aliases:     DefaultKeyAliases(),
		locking:     true,
		saveRetries: DefaultSaveRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the location of the roster file
func (s *FileStore) Path() string {
	return s.path
}

// Encoding returns the encoding used for reads and writes
func (s *FileStore) Encoding() Encoding {
	return s.encoding
}

// Load reads and normalizes the roster file
func (s *FileStore) Load(_ context.Context) (*roster.Registry, error) {
	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to read roster file %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNotExist
	}

	reg, err := decode(data, s.encoding, s.aliases)
	if err != nil {
		return nil, fmt.Errorf("roster file %s: %w", s.path, err)
	}
	return reg, nil
}

// Save writes the normalized registry to a temporary file and renames it over
// the roster file. Transient failures are retried with exponential backoff.
func (s *FileStore) Save(ctx context.Context, reg *roster.Registry) error {
	data, err := encode(roster.Normalize(reg), s.encoding)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initialSaveDelay
	expBackoff.MaxInterval = maxSaveDelay

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return struct{}{}, fmt.Errorf("failed to create roster directory %s: %w", dir, err)
		}
		return struct{}{}, s.writeAtomically(data)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(s.saveRetries+1)),
	)
	return err
}

func (s *FileStore) writeAtomically(data []byte) error {
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary roster file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to replace roster file %s: %w", s.path, err)
	}
	return nil
}

// Lock takes an exclusive lock on "<path>.lock". It blocks until the lock is
// acquired or ctx is done. With locking disabled it returns immediately.
func (s *FileStore) Lock(ctx context.Context) (func(), error) {
	if !s.locking {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create roster directory: %w", err)
	}

	fileLock := flock.New(s.path + ".lock")
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock roster file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock roster file: %w", ctx.Err())
	}
	return func() {
		_ = fileLock.Unlock()
	}, nil
}
