package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"vidflex-worker-go/internal/config"
	"vidflex-worker-go/internal/framestore"
	"vidflex-worker-go/internal/metrics"
	"vidflex-worker-go/internal/models"
	"vidflex-worker-go/internal/store"
)

var (
	// ErrAlreadyRunning is returned by Start when a supervisor is already
	// active for the stream.
	ErrAlreadyRunning = errors.New("capture already running")
	// ErrNotRunning is returned by Stop when no supervisor is active.
	ErrNotRunning = errors.New("capture not running")
)

// EventSink publishes best-effort JSON events. Satisfied by
// messaging.Service; nil disables event publishing.
type EventSink interface {
	Publish(subject string, data interface{}) error
}

// Service is the capture registry: at most one supervisor per stream
// identifier, with start/stop serialized per registry.
type Service struct {
	cfg     *config.Config
	configs *store.ConfigStore
	clips   *store.ClipStore
	frames  framestore.Store
	events  EventSink
	metrics *metrics.Metrics

	openDecoder  DecoderFactory
	newSegmenter SegmenterFactory

	mu          sync.Mutex
	supervisors map[string]*supervisor
	// known holds streams whose config was active before a restart. They
	// show up in list output but stay stopped until started again.
	known map[string]struct{}
}

func NewService(cfg *config.Config, configs *store.ConfigStore, clips *store.ClipStore,
	frames framestore.Store, events EventSink, m *metrics.Metrics) *Service {
	return &Service{
		cfg:          cfg,
		configs:      configs,
		clips:        clips,
		frames:       frames,
		events:       events,
		metrics:      m,
		openDecoder:  openGoCVDecoder,
		newSegmenter: newFFmpegSegmenter,
		supervisors:  make(map[string]*supervisor),
		known:        make(map[string]struct{}),
	}
}

// LoadActiveConfigs registers streams whose config was active before a
// restart so list output reports them. They are not started: the active flag
// survives a crash and says nothing about a live supervisor.
func (s *Service) LoadActiveConfigs() error {
	active, err := s.configs.ListActive()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range active {
		if _, ok := s.supervisors[c.StreamID]; ok {
			continue
		}
		s.known[c.StreamID] = struct{}{}
		log.Info().Str("stream_id", c.StreamID).Msg("Config was active before restart")
	}
	return nil
}

// Start resolves or creates the stream's configuration, marks it active and
// launches the run loop. The launch is asynchronous: failures inside the
// loop are reported via status, not here.
func (s *Service) Start(streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sup, ok := s.supervisors[streamID]; ok {
		if sup.alive() {
			return ErrAlreadyRunning
		}
		// Leftover from a self-terminated run.
		delete(s.supervisors, streamID)
	}

	cfgRow, err := s.configs.ResolveOrCreate(streamID, float64(s.cfg.CaptureFPS))
	if err != nil {
		return err
	}
	if err := s.configs.SetActive(streamID, true); err != nil {
		return err
	}

	// The decode handle is opened by the run loop itself: opening a remote
	// source can block for the backend's full connect timeout, and the
	// registry mutex must never be held that long.
	sup := newSupervisor(s, streamID, cfgRow.FrameRate)
	s.supervisors[streamID] = sup
	delete(s.known, streamID)
	go sup.run()

	log.Info().Str("stream_id", streamID).Msg("Capture started")
	return nil
}

// Stop signals the run loop, blocks until it has exited, deletes the
// stream's frame and deactivates its configuration. A second call reports
// ErrNotRunning.
func (s *Service) Stop(streamID string) error {
	s.mu.Lock()
	sup, ok := s.supervisors[streamID]
	if !ok {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if !sup.alive() {
		delete(s.supervisors, streamID)
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.mu.Unlock()

	sup.signalStop()
	<-sup.doneCh

	if err := s.frames.Delete(streamID); err != nil {
		log.Warn().Err(err).Str("stream_id", streamID).Msg("Failed to delete frame on stop")
	}
	if err := s.configs.SetActive(streamID, false); err != nil {
		log.Warn().Err(err).Str("stream_id", streamID).Msg("Failed to deactivate config on stop")
	}

	s.mu.Lock()
	// Only remove the supervisor we stopped; a concurrent start may have
	// replaced the entry after the loop exited.
	if cur, ok := s.supervisors[streamID]; ok && cur == sup {
		delete(s.supervisors, streamID)
	}
	s.mu.Unlock()

	log.Info().Str("stream_id", streamID).Msg("Capture stopped")
	return nil
}

// Status reports whether a live supervisor exists for the stream.
func (s *Service) Status(streamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup, ok := s.supervisors[streamID]
	return ok && sup.alive()
}

// List snapshots all registered supervisors with health metadata.
func (s *Service) List() []models.SupervisorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]models.SupervisorInfo, 0, len(s.supervisors)+len(s.known))
	for _, sup := range s.supervisors {
		infos = append(infos, sup.info())
	}
	for id := range s.known {
		if _, ok := s.supervisors[id]; ok {
			continue
		}
		infos = append(infos, models.SupervisorInfo{StreamID: id, State: "inactive"})
	}
	return infos
}

// ActiveCount returns the number of live supervisors.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sup := range s.supervisors {
		if sup.alive() {
			count++
		}
	}
	return count
}

// Reset stops every supervisor, deletes all frames and deactivates all
// configurations. Used for crash recovery and clean-slate restarts.
func (s *Service) Reset() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.supervisors))
	for id := range s.supervisors {
		ids = append(ids, id)
	}
	s.known = make(map[string]struct{})
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(id); err != nil && !errors.Is(err, ErrNotRunning) {
			log.Error().Err(err).Str("stream_id", id).Msg("Failed to stop capture during reset")
		}
	}

	if err := s.frames.DeleteAll(); err != nil {
		return err
	}
	if err := s.configs.DeactivateAll(); err != nil {
		return err
	}

	log.Info().Msg("Capture system reset completed")
	return nil
}

// Shutdown stops all supervisors. The context bounds how long callers wait
// elsewhere; each stop itself joins its run loop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.supervisors))
	for id := range s.supervisors {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(id); err != nil && !errors.Is(err, ErrNotRunning) {
			log.Error().Err(err).Str("stream_id", id).Msg("Failed to stop capture during shutdown")
		}
	}
	return nil
}
