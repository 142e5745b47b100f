// Package store implements the relational-store collaborators of the
// communication core on top of GORM: the mode row accessor, the event
// recorder, the transition auditor, the membership oracle, debugging loops
// and declared capacity.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no rows. It wraps
// gorm.ErrRecordNotFound so either sentinel works with errors.Is.
var ErrNotFound = fmt.Errorf("store: not found: %w", gorm.ErrRecordNotFound)

// ErrAlreadyResolved is returned when closing a loop that is already closed.
var ErrAlreadyResolved = errors.New("store: already resolved")

// Store is a workspace-scoped view over the shared relational store.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Opts holds parameters for creating a Store.
type Opts struct {
	DB  *gorm.DB
	Now func() time.Time // defaults to time.Now
}

// New creates a Store.
func New(opts Opts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: opts.DB, now: now}, nil
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// notFound converts gorm's "no rows" into ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// EncodeList marshals a string list to the JSON form stored in json columns.
func EncodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeList parses a JSON string list column. Malformed or empty input
// yields nil.
func DecodeList(raw string) []string {
	if raw == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}
