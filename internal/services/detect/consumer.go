package detect

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vidflex-worker-go/internal/framestore"
	"vidflex-worker-go/internal/metrics"
	"vidflex-worker-go/internal/models"
	"vidflex-worker-go/internal/store"
)

// NATS subject for per-frame detection events.
const subjectDetections = "detection.frames"

// consumer is one frame consumer loop: it samples the shared frame store at
// a fixed interval and feeds each frame into the detection pipeline. It
// holds no exclusive OS resources, so stop does not join the loop.
type consumer struct {
	streamID string
	interval time.Duration

	frames     framestore.Store
	detections *store.DetectionStore
	detector   Detector
	events     EventSink
	metrics    *metrics.Metrics

	sampled  int64
	stopCh   chan struct{}
	stopOnce sync.Once

	logger zerolog.Logger
}

func newConsumer(svc *Service, streamID string, interval time.Duration) *consumer {
	return &consumer{
		streamID:   streamID,
		interval:   interval,
		frames:     svc.frames,
		detections: svc.detections,
		detector:   svc.detector,
		events:     svc.events,
		metrics:    svc.metrics,
		stopCh:     make(chan struct{}),
		logger:     log.With().Str("stream_id", streamID).Logger(),
	}
}

func (c *consumer) signalStop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *consumer) running() bool {
	select {
	case <-c.stopCh:
		return false
	default:
		return true
	}
}

func (c *consumer) info() models.ConsumerInfo {
	return models.ConsumerInfo{
		StreamID:     c.streamID,
		Running:      c.running(),
		SampledCount: atomic.LoadInt64(&c.sampled),
	}
}

// run polls the frame store. An absent frame is not an error: the stream
// may not have published yet, or may have stopped.
func (c *consumer) run() {
	c.logger.Info().Dur("interval", c.interval).Msg("Detection loop started")
	defer c.logger.Info().Msg("Detection loop ended")

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		data, err := c.frames.Get(c.streamID)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to read frame store")
		} else if len(data) > 0 {
			c.processFrame(data)
		}

		select {
		case <-c.stopCh:
			return
		case <-time.After(c.interval):
		}
	}
}

// processFrame creates a keyframe record, runs detection and persists the
// results.
func (c *consumer) processFrame(data []byte) {
	width, height, err := frameDimensions(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to decode sampled frame")
		return
	}

	index := atomic.AddInt64(&c.sampled, 1)
	if c.metrics != nil {
		c.metrics.IncFramesSampled(c.streamID)
	}

	keyFrame := &models.KeyFrame{
		ID:         uuid.NewString(),
		StreamID:   c.streamID,
		FrameTime:  time.Now(),
		FrameIndex: index,
	}

	detections := c.detector.Detect(&SampledFrame{
		StreamID: c.streamID,
		Data:     data,
		Width:    width,
		Height:   height,
	})

	if err := c.detections.SaveKeyFrame(keyFrame, detections); err != nil {
		c.logger.Error().Err(err).Msg("Failed to persist detections")
		return
	}
	if c.metrics != nil {
		c.metrics.AddDetectionsSaved(c.streamID, len(detections))
	}

	if c.events != nil {
		event := models.DetectionEvent{
			StreamID:   c.streamID,
			FrameID:    keyFrame.ID,
			FrameTime:  keyFrame.FrameTime,
			Detections: len(detections),
		}
		if err := c.events.Publish(subjectDetections, event); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to publish detection event")
		}
	}

	c.logger.Debug().
		Str("frame_id", keyFrame.ID).
		Int("detections", len(detections)).
		Msg("Processed sampled frame")
}
