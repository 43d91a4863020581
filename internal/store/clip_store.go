package store

import (
	"fmt"

	"gorm.io/gorm"

	"vidflex-worker-go/internal/models"
)

// ClipStore is the clip metadata collaborator. Records are append-only:
// the capture loop creates one per closed clip window and nothing updates
// or deletes them.
type ClipStore struct {
	db *gorm.DB
}

func NewClipStore(db *gorm.DB) *ClipStore {
	return &ClipStore{db: db}
}

// Append writes one completed clip window.
func (s *ClipStore) Append(record *models.ClipRecord) error {
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to append clip record for %s: %w", record.StreamID, err)
	}
	return nil
}

// ListByStream returns clip records for one stream ordered by window close.
func (s *ClipStore) ListByStream(streamID string) ([]models.ClipRecord, error) {
	var records []models.ClipRecord
	err := s.db.Where("stream_id = ?", streamID).
		Order("end_time asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
