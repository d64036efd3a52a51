// Package store provides whole-file persistence for the client roster.
package store

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/stacklok/toolhive-roster/internal/logger"
	"github.com/stacklok/toolhive-roster/internal/roster"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// DefaultFileName is the roster file name used when none is configured
const DefaultFileName = "headsets.config"

var (
	// ErrNotExist is returned by Load when the roster file is missing or empty
	ErrNotExist = errors.New("roster file does not exist")

	// ErrInvalid is returned by Load when the roster file cannot be decoded
	ErrInvalid = errors.New("roster file is invalid")
)

// Store reads and writes the complete registry.
type Store interface {
	// Load reads the persisted registry and returns it normalized.
	// Returns ErrNotExist for a missing or empty file and ErrInvalid for
	// content that is not a recognisable roster.
	Load(ctx context.Context) (*roster.Registry, error)

	// Save normalizes reg and overwrites the persisted copy in full.
	Save(ctx context.Context, reg *roster.Registry) error

	// Lock acquires exclusive access to the persisted registry across
	// processes. The returned function releases it.
	Lock(ctx context.Context) (unlock func(), err error)
}

// LoadOrEmpty loads the registry from s, substituting an empty registry when it
// is missing, empty or unreadable. Failures are logged at warn level and never
// returned, so callers can always proceed.
func LoadOrEmpty(ctx context.Context, s Store) *roster.Registry {
	reg, err := s.Load(ctx)
	if err == nil {
		return reg
	}
	if errors.Is(err, ErrNotExist) {
		logger.Debugf("Roster file not found, starting with an empty roster")
	} else {
		logger.Warnf("Failed to load roster, starting with an empty roster: %v", err)
	}
	return roster.New()
}

// SafeFileName replaces characters that are not valid in file names with '_'.
// A blank name yields DefaultFileName.
func SafeFileName(name string) string {
	if strings.TrimSpace(name) == "" {
		return DefaultFileName
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
}
