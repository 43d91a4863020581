package capture

import (
	"vidflex-worker-go/internal/config"
	"vidflex-worker-go/internal/models"
)

// Decoder is the decode handle for one source. The supervisor treats it as a
// black box: it only reads frames with a bounded wait and closes it.
type Decoder interface {
	// Read returns the next frame already encoded to JPEG. ok is false when
	// no frame is available within the decode layer's own timeout.
	Read() (*models.Frame, bool)
	Close() error
}

// DecoderFactory opens a decode handle for a stream. The default factory is
// gocv-backed; tests inject fakes.
type DecoderFactory func(cfg *config.Config, streamID string, frameRate float64) (Decoder, error)
