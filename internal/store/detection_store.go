package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"vidflex-worker-go/internal/models"
)

// DetectionStore persists sampled keyframes and their detections, and owns
// the entity-type taxonomy.
type DetectionStore struct {
	db *gorm.DB
}

func NewDetectionStore(db *gorm.DB) *DetectionStore {
	return &DetectionStore{db: db}
}

// BootstrapEntityTypes loads the taxonomy from a YAML file when the table is
// empty. An unreadable file is not fatal: the detector falls back to a
// generic entity code.
func (s *DetectionStore) BootstrapEntityTypes(path string) error {
	var count int64
	if err := s.db.Model(&models.EntityType{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count entity types: %w", err)
	}
	if count > 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Entity type file not readable, skipping bootstrap")
		return nil
	}

	var types []models.EntityType
	if err := yaml.Unmarshal(data, &types); err != nil {
		return fmt.Errorf("failed to parse entity types %s: %w", path, err)
	}

	for i := range types {
		if err := s.db.Create(&types[i]).Error; err != nil {
			return fmt.Errorf("failed to create entity type %s: %w", types[i].Code, err)
		}
	}

	log.Info().Int("count", len(types)).Str("path", path).Msg("Entity types bootstrapped")
	return nil
}

// EntityCodes returns all known taxonomy codes.
func (s *DetectionStore) EntityCodes() ([]string, error) {
	var codes []string
	if err := s.db.Model(&models.EntityType{}).Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// SaveKeyFrame persists one sampled frame and its detections in a single
// transaction.
func (s *DetectionStore) SaveKeyFrame(frame *models.KeyFrame, detections []models.Detection) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(frame).Error; err != nil {
			return fmt.Errorf("failed to create keyframe: %w", err)
		}

		for _, det := range detections {
			seg, err := json.Marshal(det.Segmentation)
			if err != nil {
				return fmt.Errorf("failed to encode segmentation: %w", err)
			}
			obj := models.DetectedObject{
				FrameID:      frame.ID,
				EntityType:   det.EntityType,
				SpecificType: det.EntityType,
				Confidence:   det.Confidence,
				BoxX:         det.Box.X,
				BoxY:         det.Box.Y,
				BoxWidth:     det.Box.Width,
				BoxHeight:    det.Box.Height,
				Segmentation: string(seg),
				ReID:         det.ReID,
			}
			if err := tx.Create(&obj).Error; err != nil {
				return fmt.Errorf("failed to create detected object: %w", err)
			}
		}
		return nil
	})
}

// KeyFramesForStream returns the sampled keyframes of one stream, oldest
// first.
func (s *DetectionStore) KeyFramesForStream(streamID string) ([]models.KeyFrame, error) {
	var frames []models.KeyFrame
	if err := s.db.Where("stream_id = ?", streamID).Order("frame_index asc").Find(&frames).Error; err != nil {
		return nil, err
	}
	return frames, nil
}

// DetectionsForFrame returns the persisted detections of one keyframe.
func (s *DetectionStore) DetectionsForFrame(frameID string) ([]models.DetectedObject, error) {
	var objects []models.DetectedObject
	if err := s.db.Where("frame_id = ?", frameID).Find(&objects).Error; err != nil {
		return nil, err
	}
	return objects, nil
}
