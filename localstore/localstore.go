// Package localstore is the device-local durable key/value store, the
// counterpart of a browser's localStorage.
package localstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store interface {
	// GetItem returns the value under key; ok is false when the key is unset.
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

type entry struct {
	Key       string `gorm:"column:item_key;primaryKey;size:128;not null"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

func (entry) TableName() string { return "local_storage" }

// SQLite keeps entries in a single-file database.
type SQLite struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening local store %s: %w", path, err)
	}

	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("migrating local store: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) GetItem(key string) (string, bool, error) {
	var e entry
	err := s.db.Where("item_key = ?", key).First(&e).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return e.Value, true, nil
}

func (s *SQLite) SetItem(key, value string) error {
	e := entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
}

func (s *SQLite) RemoveItem(key string) error {
	return s.db.Where("item_key = ?", key).Delete(&entry{}).Error
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Memory is a process-local Store. Setting FailWrites makes SetItem and
// RemoveItem fail, which is how quota or permission problems surface.
type Memory struct {
	mu         sync.Mutex
	items      map[string]string
	FailWrites bool
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

var ErrWriteFailed = errors.New("local store write failed")

func (m *Memory) GetItem(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	m.items[key] = value
	return nil
}

func (m *Memory) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	delete(m.items, key)
	return nil
}
