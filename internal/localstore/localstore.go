// Package localstore is the device-local key/value side-store. The emergency
// queue persists itself here so queued actions survive restarts and outages
// of the shared database.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/hearth/internal/db"
	"github.com/zulandar/hearth/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV is a durable string key/value store.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// SQLite is a KV backed by a local SQLite file.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the side-store file at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("localstore: path is required")
	}
	gdb, err := db.ConnectSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("localstore: open %s: %w", path, err)
	}
	return NewSQLite(gdb)
}

// NewSQLite wraps an open connection and migrates the entry table.
func NewSQLite(gdb *gorm.DB) (*SQLite, error) {
	if gdb == nil {
		return nil, fmt.Errorf("localstore: db is required")
	}
	if err := gdb.AutoMigrate(&models.LocalEntry{}); err != nil {
		return nil, fmt.Errorf("localstore: migrate: %w", err)
	}
	return &SQLite{db: gdb}, nil
}

// Get implements KV.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.LocalEntry
	err := s.db.WithContext(ctx).Where("`key` = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localstore: get %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Put implements KV.
func (s *SQLite) Put(ctx context.Context, key, value string) error {
	entry := models.LocalEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("localstore: put %s: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("`key` = ?", key).Delete(&models.LocalEntry{}).Error; err != nil {
		return fmt.Errorf("localstore: delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("localstore: close: %w", err)
	}
	return sqlDB.Close()
}

// Memory is an in-process KV. It does not survive restarts; tests share one
// Memory between two queue instances to simulate a restart.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get implements KV.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Put implements KV.
func (m *Memory) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Delete implements KV.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
