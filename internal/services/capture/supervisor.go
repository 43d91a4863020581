package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vidflex-worker-go/internal/config"
	"vidflex-worker-go/internal/framestore"
	"vidflex-worker-go/internal/metrics"
	"vidflex-worker-go/internal/models"
	"vidflex-worker-go/internal/store"
)

// streamState is the run-loop state machine of one supervisor.
type streamState int32

const (
	stateConnected streamState = iota
	stateStalled
	stateReconnecting
	stateTerminated
)

func (s streamState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateStalled:
		return "stalled"
	case stateReconnecting:
		return "reconnecting"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// NATS subject for clip window events.
const subjectClips = "capture.clips"

// supervisor owns one stream: its decode handle, its segmenting subprocess
// and its reconnect state machine. All OS-level resources are released by
// the run loop itself, never by other goroutines.
type supervisor struct {
	cfg       *config.Config
	streamID  string
	frameRate float64

	configs *store.ConfigStore
	clips   *store.ClipStore
	frames  framestore.Store
	events  EventSink
	metrics *metrics.Metrics

	openDecoder  DecoderFactory
	newSegmenter SegmenterFactory

	dec Decoder

	state      int32
	frameCount int64
	lastFrame  int64 // unix nanos

	publishCh chan *models.Frame
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once

	logger zerolog.Logger
}

func newSupervisor(svc *Service, streamID string, frameRate float64) *supervisor {
	return &supervisor{
		cfg:          svc.cfg,
		streamID:     streamID,
		frameRate:    frameRate,
		configs:      svc.configs,
		clips:        svc.clips,
		frames:       svc.frames,
		events:       svc.events,
		metrics:      svc.metrics,
		openDecoder:  svc.openDecoder,
		newSegmenter: svc.newSegmenter,
		publishCh:    make(chan *models.Frame, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		logger:       log.With().Str("stream_id", streamID).Logger(),
	}
}

func (s *supervisor) setState(state streamState) {
	atomic.StoreInt32(&s.state, int32(state))
}

func (s *supervisor) getState() streamState {
	return streamState(atomic.LoadInt32(&s.state))
}

// alive reports whether the run loop has not yet exited.
func (s *supervisor) alive() bool {
	select {
	case <-s.doneCh:
		return false
	default:
		return true
	}
}

// signalStop asks the run loop to exit. Safe to call more than once.
func (s *supervisor) signalStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *supervisor) info() models.SupervisorInfo {
	nanos := atomic.LoadInt64(&s.lastFrame)
	var last time.Time
	if nanos > 0 {
		last = time.Unix(0, nanos)
	}
	return models.SupervisorInfo{
		StreamID:      s.streamID,
		State:         s.getState().String(),
		Alive:         s.alive(),
		LastFrameTime: last,
		FrameCount:    atomic.LoadInt64(&s.frameCount),
	}
}

// run is the capture loop. It exits on stop signal or when the reconnect
// budget is exhausted, and never leaves the subprocess or decode handle
// alive after exit.
func (s *supervisor) run() {
	seg := s.newSegmenter(s.cfg, s.streamID)
	if err := seg.Start(); err != nil {
		// Segmenting and frame acquisition are independent failure domains.
		s.logger.Error().Err(err).Msg("Failed to start segmenter, capture continues")
		seg = nil
	}

	go s.publishLoop()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Capture loop panic recovered")
		}
		if seg != nil {
			seg.Stop()
		}
		if s.dec != nil {
			s.dec.Close()
			s.dec = nil
		}
		close(s.publishCh)
		close(s.doneCh)
		s.logger.Info().Msg("Capture loop ended")
	}()

	var reconnectStartedAt time.Time
	reconnectAttempts := 0
	lastFrameTime := time.Now()
	windowStart := time.Now()
	clipPath := hlsPlaylistPath(s.cfg, s.streamID)
	if seg != nil {
		clipPath = seg.PlaylistPath()
	}

	// Initial open failure is treated like a stall: the loop enters the
	// reconnect state machine instead of aborting.
	if dec, err := s.openDecoder(s.cfg, s.streamID, s.frameRate); err != nil {
		s.logger.Warn().Err(err).Msg("Initial decode open failed, will reconnect")
		s.setState(stateReconnecting)
	} else {
		s.dec = dec
		s.setState(stateConnected)
	}

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if s.dec != nil {
			frame, ok := s.dec.Read()
			now := time.Now()

			switch {
			case ok:
				s.setState(stateConnected)
				reconnectStartedAt = time.Time{}
				reconnectAttempts = 0
				lastFrameTime = now
				atomic.AddInt64(&s.frameCount, 1)
				atomic.StoreInt64(&s.lastFrame, now.UnixNano())
				if s.metrics != nil {
					s.metrics.IncFramesCaptured(s.streamID)
				}

				s.offerFrame(frame)

				if now.Sub(windowStart) >= s.cfg.ClipDuration {
					s.commitClip(clipPath, windowStart, now)
					windowStart = now
				}

				s.pause(s.frameInterval())

			case now.Sub(lastFrameTime) > s.cfg.LivenessThreshold:
				s.setState(stateStalled)
				if reconnectStartedAt.IsZero() {
					reconnectStartedAt = now
				}
				reconnectAttempts++
				s.reconnect(reconnectAttempts)

			default:
				// Transient read failure under the liveness threshold.
				s.logger.Debug().Msg("Frame unavailable, within liveness threshold")
				s.pause(s.cfg.ReadRetryPause)
			}
		} else {
			s.setState(stateReconnecting)
			if reconnectStartedAt.IsZero() {
				reconnectStartedAt = time.Now()
			}
			reconnectAttempts++
			s.reconnect(reconnectAttempts)
		}

		if !reconnectStartedAt.IsZero() {
			elapsed := time.Since(reconnectStartedAt)
			if elapsed > s.cfg.ReconnectTimeout || reconnectAttempts > s.cfg.MaxReconnectAttempts {
				s.logger.Error().
					Int("attempts", reconnectAttempts).
					Dur("elapsed", elapsed).
					Msg("Reconnect budget exhausted, terminating stream")
				s.terminate()
				return
			}
		}
	}
}

func (s *supervisor) frameInterval() time.Duration {
	if s.frameRate > 0 {
		return time.Duration(float64(time.Second) / s.frameRate)
	}
	return s.cfg.FrameInterval()
}

// reconnect releases the handle, pauses briefly and reopens. The attempt
// counter is reset only by a successful read, not here.
func (s *supervisor) reconnect(attempt int) {
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	if s.metrics != nil {
		s.metrics.IncReconnects(s.streamID)
	}

	s.pause(s.cfg.ReconnectPause)

	select {
	case <-s.stopCh:
		return
	default:
	}

	dec, err := s.openDecoder(s.cfg, s.streamID, s.frameRate)
	if err != nil {
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
		return
	}
	s.dec = dec
	s.logger.Info().Int("attempt", attempt).Msg("Decode handle reopened")
}

// terminate is the one-way exit on an exhausted reconnect budget: the
// operator must call start again.
func (s *supervisor) terminate() {
	s.setState(stateTerminated)

	if err := s.configs.SetActive(s.streamID, false); err != nil {
		s.logger.Error().Err(err).Msg("Failed to deactivate config on termination")
	}
	if err := s.frames.Delete(s.streamID); err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete frame on termination")
	}
	if s.metrics != nil {
		s.metrics.IncTerminations(s.streamID)
	}
}

// offerFrame hands a frame to the publisher goroutine without blocking the
// read loop. Last write wins: a pending older frame is dropped.
func (s *supervisor) offerFrame(frame *models.Frame) {
	select {
	case s.publishCh <- frame:
	default:
		select {
		case <-s.publishCh:
		default:
		}
		select {
		case s.publishCh <- frame:
		default:
		}
	}
}

// publishLoop writes frames to the shared store off the hot path. It exits
// when the run loop closes publishCh.
func (s *supervisor) publishLoop() {
	for frame := range s.publishCh {
		if err := s.frames.Put(s.streamID, frame.Data); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish frame")
			continue
		}
		if s.metrics != nil {
			s.metrics.IncFramesPublished(s.streamID)
		}
	}
}

// commitClip records the just-closed clip window. Persistence failures are
// logged and do not stop capture.
func (s *supervisor) commitClip(clipPath string, start, end time.Time) {
	record := &models.ClipRecord{
		StreamID:  s.streamID,
		ClipPath:  clipPath,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start).Seconds(),
	}

	if err := s.clips.Append(record); err != nil {
		s.logger.Error().Err(err).Msg("Failed to commit clip record")
		return
	}
	if s.metrics != nil {
		s.metrics.IncClipsCommitted(s.streamID)
	}

	if s.events != nil {
		event := models.ClipEvent{
			StreamID:  s.streamID,
			ClipPath:  clipPath,
			StartTime: start,
			EndTime:   end,
			Duration:  record.Duration,
		}
		if err := s.events.Publish(subjectClips, event); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish clip event")
		}
	}

	s.logger.Info().
		Str("clip_path", clipPath).
		Float64("duration", record.Duration).
		Msg("Clip window committed")
}

// pause sleeps for d unless a stop arrives first.
func (s *supervisor) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-s.stopCh:
	case <-time.After(d):
	}
}
