package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"vidflex-worker-go/internal/models"
)

// ConfigStore is the configuration collaborator: resolve-or-create stream
// configs and flip their active flag with single-row atomic updates.
type ConfigStore struct {
	db *gorm.DB
}

func NewConfigStore(db *gorm.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// ResolveOrCreate returns the config for streamID, creating it with the
// given default frame rate on first use.
func (s *ConfigStore) ResolveOrCreate(streamID string, frameRate float64) (*models.StreamConfig, error) {
	var cfg models.StreamConfig
	err := s.db.Where("stream_id = ?", streamID).First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load config for %s: %w", streamID, err)
	}

	cfg = models.StreamConfig{
		StreamID:  streamID,
		FrameRate: frameRate,
	}
	if err := s.db.Create(&cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to create config for %s: %w", streamID, err)
	}
	cfg.Name = fmt.Sprintf("Config_%d", cfg.ID)
	if err := s.db.Model(&cfg).Update("name", cfg.Name).Error; err != nil {
		return nil, fmt.Errorf("failed to name config for %s: %w", streamID, err)
	}
	return &cfg, nil
}

// Get returns the config for streamID, or gorm.ErrRecordNotFound.
func (s *ConfigStore) Get(streamID string) (*models.StreamConfig, error) {
	var cfg models.StreamConfig
	if err := s.db.Where("stream_id = ?", streamID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetActive updates the active flag for a single stream.
func (s *ConfigStore) SetActive(streamID string, active bool) error {
	return s.db.Model(&models.StreamConfig{}).
		Where("stream_id = ?", streamID).
		Update("is_active", active).Error
}

// ListActive returns all active configs.
func (s *ConfigStore) ListActive() ([]models.StreamConfig, error) {
	var configs []models.StreamConfig
	if err := s.db.Where("is_active = ?", true).Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// DeactivateAll clears the active flag on every config. Used by reset.
func (s *ConfigStore) DeactivateAll() error {
	return s.db.Model(&models.StreamConfig{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
}
