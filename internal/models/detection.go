package models

import "time"

// EntityType is one row of the detection taxonomy, bootstrapped from YAML
// when the table is empty.
type EntityType struct {
	ID          uint   `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;size:64" yaml:"code"`
	TypeName    string `yaml:"type_name"`
	Description string `yaml:"description"`
	CreatedAt   time.Time
}

// KeyFrame is one sampled frame handed to the detection pipeline.
type KeyFrame struct {
	ID         string `gorm:"primaryKey;size:36"`
	StreamID   string `gorm:"index;size:512"`
	FrameTime  time.Time
	FrameIndex int64
	CreatedAt  time.Time
}

// BoundingBox in pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is one result from the detector. Confidence, segmentation and
// re-identification are pass-through fields; the placeholder detector fills
// defaults.
type Detection struct {
	EntityType   string      `json:"entity_type"`
	Confidence   float64     `json:"confidence"`
	Box          BoundingBox `json:"bounding_box"`
	Segmentation []float64   `json:"segmentation,omitempty"`
	ReID         int64       `json:"re_id"`
}

// DetectedObject is the persisted form of a Detection, tied to its KeyFrame.
type DetectedObject struct {
	ID           uint   `gorm:"primaryKey"`
	FrameID      string `gorm:"index;size:36"`
	EntityType   string `gorm:"size:64"`
	SpecificType string `gorm:"size:64"`
	Confidence   float64
	BoxX         int
	BoxY         int
	BoxWidth     int
	BoxHeight    int
	Segmentation string // JSON-encoded point list
	ReID         int64
	CreatedAt    time.Time
}

// DetectionEvent is published over NATS after each sampled frame is processed.
type DetectionEvent struct {
	StreamID   string    `json:"stream_id"`
	FrameID    string    `json:"frame_id"`
	FrameTime  time.Time `json:"frame_time"`
	Detections int       `json:"detections"`
}
