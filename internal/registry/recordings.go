package registry

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RecordingStore persists finished-recording metadata. Rows are insert-only.
type RecordingStore interface {
	// Insert stores rec and returns it with RecordID and CreatedAt assigned.
	// The row is committed before Insert returns.
	Insert(ctx context.Context, rec Recording) (Recording, error)

	// List returns recordings newest first (by RecordID). An empty droneID
	// returns every recording.
	List(ctx context.Context, droneID string) ([]Recording, error)
}

// GormRecordingStore is a RecordingStore backed by a gorm database.
type GormRecordingStore struct {
	db *gorm.DB
}

// NewGormRecordingStore returns a store using db. Call Migrate before first use
// against a fresh database.
func NewGormRecordingStore(db *gorm.DB) *GormRecordingStore {
	return &GormRecordingStore{db: db}
}

// Migrate creates or updates the recordings table and its indexes.
func (s *GormRecordingStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Recording{}); err != nil {
		return fmt.Errorf("migrate recordings: %w", err)
	}
	return nil
}

// Insert implements RecordingStore.Insert.
func (s *GormRecordingStore) Insert(ctx context.Context, rec Recording) (Recording, error) {
	// Identity and timestamp are always assigned on insert.
	rec.RecordID = 0
	rec.CreatedAt = time.Time{}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Recording{}, fmt.Errorf("insert recording for stream %q: %w", rec.StreamID, err)
	}
	return rec, nil
}

// List implements RecordingStore.List.
func (s *GormRecordingStore) List(ctx context.Context, droneID string) ([]Recording, error) {
	q := s.db.WithContext(ctx).Model(&Recording{})
	if droneID != "" {
		q = q.Where("drone_id = ?", droneID)
	}

	var out []Recording
	if err := q.Order("record_id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return out, nil
}
