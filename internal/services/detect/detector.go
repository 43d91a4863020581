package detect

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"math/rand"

	"vidflex-worker-go/internal/models"
)

// SampledFrame is one frame pulled from the shared store, decoded only far
// enough to know its dimensions.
type SampledFrame struct {
	StreamID string
	Data     []byte
	Width    int
	Height   int
}

// Detector is the external detection capability behind a single function
// boundary. Confidence, segmentation and re-identification are pass-through
// fields.
type Detector interface {
	Detect(frame *SampledFrame) []models.Detection
}

// PlaceholderDetector stands in for a real model: it returns one random
// bounding box per frame, tagged with a random known entity code.
type PlaceholderDetector struct {
	codes []string
}

func NewPlaceholderDetector(codes []string) *PlaceholderDetector {
	if len(codes) == 0 {
		codes = []string{"object"}
	}
	return &PlaceholderDetector{codes: codes}
}

func (d *PlaceholderDetector) Detect(frame *SampledFrame) []models.Detection {
	w, h := frame.Width, frame.Height
	if w < 60 || h < 60 {
		return nil
	}

	x := rand.Intn(w - 50)
	y := rand.Intn(h - 50)
	maxW := min(100, w-x)
	maxH := min(100, h-y)

	return []models.Detection{{
		EntityType: d.codes[rand.Intn(len(d.codes))],
		Confidence: 1.0,
		Box: models.BoundingBox{
			X:      x,
			Y:      y,
			Width:  50 + rand.Intn(maxW-49),
			Height: 50 + rand.Intn(maxH-49),
		},
		ReID: -1,
	}}
}

// frameDimensions reads the JPEG header for width and height without
// decoding pixels.
func frameDimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
