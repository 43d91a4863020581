package models

import "time"

// StreamConfig identifies a capture source and its parameters. Configs are
// created on the first start request for an unknown stream and are only ever
// deactivated, never deleted.
type StreamConfig struct {
	ID        uint   `gorm:"primaryKey"`
	StreamID  string `gorm:"uniqueIndex;size:512"`
	Name      string
	FrameRate float64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClipRecord describes one completed HLS clip window. Immutable once written.
type ClipRecord struct {
	ID        uint   `gorm:"primaryKey"`
	StreamID  string `gorm:"index;size:512"`
	ClipPath  string
	StartTime time.Time
	EndTime   time.Time
	Duration  float64 // seconds
	CreatedAt time.Time
}

// Frame is one decoded frame, already encoded to JPEG by the decoder.
type Frame struct {
	StreamID  string
	Data      []byte
	Width     int
	Height    int
	FrameID   int64
	Timestamp time.Time
}

// ClipEvent is published over NATS when a clip window closes.
type ClipEvent struct {
	StreamID  string    `json:"stream_id"`
	ClipPath  string    `json:"clip_path"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"`
}

// StreamRequest for API start/stop calls.
type StreamRequest struct {
	StreamID string `json:"stream_id" binding:"required"`
}

// StreamStatusResponse for API status calls.
type StreamStatusResponse struct {
	StreamID string `json:"stream_id"`
	Running  bool   `json:"running"`
}

// SupervisorInfo describes one active capture supervisor.
type SupervisorInfo struct {
	StreamID      string    `json:"stream_id"`
	State         string    `json:"state"`
	Alive         bool      `json:"alive"`
	LastFrameTime time.Time `json:"last_frame_time"`
	FrameCount    int64     `json:"frame_count"`
}

// ConsumerInfo describes one active frame consumer loop.
type ConsumerInfo struct {
	StreamID     string `json:"stream_id"`
	Running      bool   `json:"running"`
	SampledCount int64  `json:"sampled_count"`
}
