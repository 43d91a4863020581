package detect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"vidflex-worker-go/internal/config"
	"vidflex-worker-go/internal/framestore"
	"vidflex-worker-go/internal/metrics"
	"vidflex-worker-go/internal/models"
	"vidflex-worker-go/internal/store"
)

var (
	// ErrAlreadyRunning is returned by Start when a consumer loop is already
	// active for the stream.
	ErrAlreadyRunning = errors.New("detection already running")
	// ErrNotRunning is returned by Stop when no consumer loop is active.
	ErrNotRunning = errors.New("detection not running")
	// ErrNoConfig is returned by Start for streams unknown to the
	// configuration collaborator.
	ErrNoConfig = errors.New("no configuration found")
)

// EventSink publishes best-effort JSON events. nil disables publishing.
type EventSink interface {
	Publish(subject string, data interface{}) error
}

// Service is the detection registry, mirroring the capture registry without
// decode handles or subprocesses.
type Service struct {
	cfg        *config.Config
	configs    *store.ConfigStore
	detections *store.DetectionStore
	frames     framestore.Store
	detector   Detector
	events     EventSink
	metrics    *metrics.Metrics

	mu        sync.Mutex
	consumers map[string]*consumer
}

func NewService(cfg *config.Config, configs *store.ConfigStore, detections *store.DetectionStore,
	frames framestore.Store, detector Detector, events EventSink, m *metrics.Metrics) *Service {
	return &Service{
		cfg:        cfg,
		configs:    configs,
		detections: detections,
		frames:     frames,
		detector:   detector,
		events:     events,
		metrics:    m,
		consumers:  make(map[string]*consumer),
	}
}

// Start launches a polling consumer for a known stream.
func (s *Service) Start(streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.consumers[streamID]; ok && c.running() {
		return ErrAlreadyRunning
	}

	cfgRow, err := s.configs.Get(streamID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoConfig
	}
	if err != nil {
		return err
	}

	interval := s.cfg.DetectionInterval()
	if cfgRow.FrameRate > 0 {
		interval = time.Duration(float64(time.Second) / cfgRow.FrameRate)
	}

	c := newConsumer(s, streamID, interval)
	s.consumers[streamID] = c
	go c.run()

	log.Info().Str("stream_id", streamID).Msg("Detection started")
	return nil
}

// Stop flips the run flag and removes the consumer. Loop exit is
// cooperative and checked each iteration, so this does not block.
func (s *Service) Stop(streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.consumers[streamID]
	if !ok || !c.running() {
		delete(s.consumers, streamID)
		return ErrNotRunning
	}

	c.signalStop()
	delete(s.consumers, streamID)

	log.Info().Str("stream_id", streamID).Msg("Detection stopped")
	return nil
}

// Status reports whether a consumer loop is active for the stream.
func (s *Service) Status(streamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[streamID]
	return ok && c.running()
}

// List snapshots all registered consumers.
func (s *Service) List() []models.ConsumerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]models.ConsumerInfo, 0, len(s.consumers))
	for _, c := range s.consumers {
		infos = append(infos, c.info())
	}
	return infos
}

// ActiveCount returns the number of running consumers.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, c := range s.consumers {
		if c.running() {
			count++
		}
	}
	return count
}

// StopAll stops every consumer. Used by reset and shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.consumers {
		c.signalStop()
		delete(s.consumers, id)
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.StopAll()
	return nil
}
