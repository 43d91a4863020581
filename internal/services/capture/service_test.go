package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidflex-worker-go/internal/config"
	"vidflex-worker-go/internal/framestore"
	"vidflex-worker-go/internal/models"
	"vidflex-worker-go/internal/store"
)

// fakeStream scripts the behavior of a capture source: reads can be made to
// fail and opens can be made to error, while counting every open and close.
type fakeStream struct {
	mu      sync.Mutex
	failing bool
	openErr bool
	opens   int
	closes  int
	reads   int64
}

func (f *fakeStream) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *fakeStream) setOpenErr(v bool) {
	f.mu.Lock()
	f.openErr = v
	f.mu.Unlock()
}

func (f *fakeStream) counts() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

func (f *fakeStream) open(_ *config.Config, streamID string, _ float64) (Decoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr {
		return nil, errors.New("source unavailable")
	}
	f.opens++
	return &fakeDecoder{src: f, streamID: streamID}, nil
}

type fakeDecoder struct {
	src      *fakeStream
	streamID string
}

func (d *fakeDecoder) Read() (*models.Frame, bool) {
	d.src.mu.Lock()
	defer d.src.mu.Unlock()
	if d.src.failing {
		return nil, false
	}
	d.src.reads++
	return &models.Frame{
		StreamID:  d.streamID,
		Data:      []byte("jpeg"),
		FrameID:   d.src.reads,
		Timestamp: time.Now(),
	}, true
}

func (d *fakeDecoder) Close() error {
	d.src.mu.Lock()
	d.src.closes++
	d.src.mu.Unlock()
	return nil
}

type fakeSegmenter struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakeSegmenter) factory(_ *config.Config, _ string) Segmenter { return f }

func (f *fakeSegmenter) Start() error {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	return nil
}

func (f *fakeSegmenter) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeSegmenter) PlaylistPath() string { return "tmp/test_hls/index.m3u8" }

func (f *fakeSegmenter) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Publish(subject string, _ interface{}) error {
	r.mu.Lock()
	r.events = append(r.events, subject)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testConfig() *config.Config {
	return &config.Config{
		CaptureFPS:           200, // 5ms pacing
		ClipDuration:         40 * time.Millisecond,
		ClipOutputDir:        "tmp/video_clip",
		LivenessThreshold:    10 * time.Millisecond,
		ReconnectTimeout:     150 * time.Millisecond,
		MaxReconnectAttempts: 3,
		ReconnectPause:       5 * time.Millisecond,
		ReadRetryPause:       2 * time.Millisecond,
	}
}

type fixture struct {
	svc     *Service
	src     *fakeStream
	seg     *fakeSegmenter
	sink    *recordingSink
	frames  *framestore.MemoryStore
	configs *store.ConfigStore
	clips   *store.ClipStore
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)

	f := &fixture{
		src:     &fakeStream{},
		seg:     &fakeSegmenter{},
		sink:    &recordingSink{},
		frames:  framestore.NewMemoryStore(),
		configs: store.NewConfigStore(db),
		clips:   store.NewClipStore(db),
	}
	f.svc = NewService(cfg, f.configs, f.clips, f.frames, f.sink, nil)
	f.svc.openDecoder = f.src.open
	f.svc.newSegmenter = f.seg.factory

	t.Cleanup(func() {
		for _, info := range f.svc.List() {
			f.svc.Stop(info.StreamID)
		}
	})
	return f
}

func (f *fixture) eventuallyPublished(t *testing.T, streamID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		data, err := f.frames.Get(streamID)
		return err == nil && data != nil
	}, time.Second, 2*time.Millisecond, "frame never reached the store")
}

func TestService_StartStop(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.svc.Start("rtmp://host/live/cam1"))
	assert.True(t, f.svc.Status("rtmp://host/live/cam1"))

	f.eventuallyPublished(t, "rtmp://host/live/cam1")

	cfgRow, err := f.configs.Get("rtmp://host/live/cam1")
	require.NoError(t, err)
	assert.True(t, cfgRow.IsActive)

	require.NoError(t, f.svc.Stop("rtmp://host/live/cam1"))
	assert.False(t, f.svc.Status("rtmp://host/live/cam1"))

	data, err := f.frames.Get("rtmp://host/live/cam1")
	require.NoError(t, err)
	assert.Nil(t, data, "stop must delete the published frame")

	cfgRow, err = f.configs.Get("rtmp://host/live/cam1")
	require.NoError(t, err)
	assert.False(t, cfgRow.IsActive)

	assert.ErrorIs(t, f.svc.Stop("rtmp://host/live/cam1"), ErrNotRunning)

	opens, closes := f.src.counts()
	assert.Equal(t, opens, closes, "every decode handle must be released")
	starts, stops := f.seg.counts()
	assert.Equal(t, starts, stops, "every segmenter must be stopped")
}

func TestService_StartConcurrent(t *testing.T) {
	f := newFixture(t, testConfig())

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.Start("cam1")
		}()
	}
	wg.Wait()
	close(errs)

	started, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrAlreadyRunning):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, n-1, rejected)
	assert.Equal(t, 1, f.svc.ActiveCount())
}

func TestService_StopUnknown(t *testing.T) {
	f := newFixture(t, testConfig())
	assert.ErrorIs(t, f.svc.Stop("never-started"), ErrNotRunning)
}

func TestService_ReconnectExhaustion(t *testing.T) {
	f := newFixture(t, testConfig())
	f.src.setOpenErr(true)

	require.NoError(t, f.svc.Start("cam1"))

	// All opens fail, so the loop burns through its reconnect budget and
	// terminates on its own.
	require.Eventually(t, func() bool {
		return !f.svc.Status("cam1")
	}, 2*time.Second, 5*time.Millisecond, "supervisor never terminated")

	infos := f.svc.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "terminated", infos[0].State)
	assert.False(t, infos[0].Alive)

	cfgRow, err := f.configs.Get("cam1")
	require.NoError(t, err)
	assert.False(t, cfgRow.IsActive, "termination must deactivate the config")

	data, err := f.frames.Get("cam1")
	require.NoError(t, err)
	assert.Nil(t, data)

	// The dead entry is cleaned up lazily.
	assert.ErrorIs(t, f.svc.Stop("cam1"), ErrNotRunning)
	assert.Empty(t, f.svc.List())

	// A new start takes over the identifier.
	f.src.setOpenErr(false)
	require.NoError(t, f.svc.Start("cam1"))
	assert.True(t, f.svc.Status("cam1"))
}

func TestService_RecoversFromTransientStall(t *testing.T) {
	cfg := testConfig()
	// A generous budget so the stall never exhausts it.
	cfg.ReconnectTimeout = 10 * time.Second
	cfg.MaxReconnectAttempts = 1000
	f := newFixture(t, cfg)

	require.NoError(t, f.svc.Start("cam1"))
	f.eventuallyPublished(t, "cam1")

	f.src.setFailing(true)
	time.Sleep(50 * time.Millisecond)

	opens, _ := f.src.counts()
	assert.Greater(t, opens, 1, "stall must trigger reopen attempts")

	f.src.setFailing(false)

	require.Eventually(t, func() bool {
		infos := f.svc.List()
		return len(infos) == 1 && infos[0].State == "connected"
	}, 2*time.Second, 5*time.Millisecond, "supervisor never recovered")
	assert.True(t, f.svc.Status("cam1"))
}

func TestService_ClipWindows(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.svc.Start("cam1"))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, f.svc.Stop("cam1"))

	records, err := f.clips.ListByStream("cam1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(records), 2, "expected multiple clip windows")

	for i := 0; i < len(records)-1; i++ {
		assert.WithinDuration(t, records[i].EndTime, records[i+1].StartTime, time.Millisecond,
			"clip windows must be contiguous")
	}
	for _, r := range records {
		assert.Equal(t, f.seg.PlaylistPath(), r.ClipPath)
		assert.Greater(t, r.Duration, 0.0)
	}

	assert.GreaterOrEqual(t, f.sink.count(), len(records), "every window must be announced")
}

func TestService_Reset(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.svc.Start("cam1"))
	require.NoError(t, f.svc.Start("cam2"))
	f.eventuallyPublished(t, "cam1")
	f.eventuallyPublished(t, "cam2")

	require.NoError(t, f.svc.Reset())

	assert.Equal(t, 0, f.svc.ActiveCount())
	active, err := f.configs.ListActive()
	require.NoError(t, err)
	assert.Empty(t, active)

	for _, id := range []string{"cam1", "cam2"} {
		data, err := f.frames.Get(id)
		require.NoError(t, err)
		assert.Nil(t, data)
	}
}

func TestService_SlowOpenDoesNotBlockRegistry(t *testing.T) {
	f := newFixture(t, testConfig())

	release := make(chan struct{})
	var once sync.Once
	releaseSlow := func() { once.Do(func() { close(release) }) }
	defer releaseSlow()

	open := f.src.open
	f.svc.openDecoder = func(cfg *config.Config, streamID string, frameRate float64) (Decoder, error) {
		if streamID == "slow" {
			<-release
		}
		return open(cfg, streamID, frameRate)
	}

	began := time.Now()
	require.NoError(t, f.svc.Start("slow"))
	require.Less(t, time.Since(began), 200*time.Millisecond,
		"start must not wait for the decode open")

	// Registry calls for other streams proceed while the open is in flight.
	done := make(chan error, 1)
	go func() {
		f.svc.Status("slow")
		f.svc.List()
		done <- f.svc.Start("cam2")
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		releaseSlow()
		t.Fatal("registry blocked behind a slow decoder open")
	}

	releaseSlow()
	f.eventuallyPublished(t, "slow")
}

func TestService_AttemptBoundDespiteReopens(t *testing.T) {
	cfg := testConfig()
	// A timeout far beyond the test horizon: only the attempt bound can
	// terminate the stream.
	cfg.ReconnectTimeout = 10 * time.Second
	cfg.MaxReconnectAttempts = 3
	f := newFixture(t, cfg)

	// Opens succeed, reads never do. Each reconnect gets a fresh handle,
	// which must not reset the attempt counter.
	f.src.setFailing(true)
	require.NoError(t, f.svc.Start("cam1"))

	require.Eventually(t, func() bool {
		return !f.svc.Status("cam1")
	}, 2*time.Second, 5*time.Millisecond, "attempt bound never terminated the stream")

	infos := f.svc.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "terminated", infos[0].State)

	opens, closes := f.src.counts()
	assert.GreaterOrEqual(t, opens, cfg.MaxReconnectAttempts,
		"each attempt must have reopened a handle")
	assert.Equal(t, opens, closes)

	cfgRow, err := f.configs.Get("cam1")
	require.NoError(t, err)
	assert.False(t, cfgRow.IsActive)
}

func TestService_LoadActiveConfigs(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.configs.ResolveOrCreate("cam1", 15)
	require.NoError(t, err)
	require.NoError(t, f.configs.SetActive("cam1", true))

	require.NoError(t, f.svc.LoadActiveConfigs())

	infos := f.svc.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "cam1", infos[0].StreamID)
	assert.Equal(t, "inactive", infos[0].State)
	assert.False(t, infos[0].Alive)
	assert.False(t, f.svc.Status("cam1"))
	assert.ErrorIs(t, f.svc.Stop("cam1"), ErrNotRunning)

	// Starting the stream supersedes the placeholder entry.
	require.NoError(t, f.svc.Start("cam1"))
	infos = f.svc.List()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Alive)

	require.NoError(t, f.svc.Reset())
	assert.Empty(t, f.svc.List())
}

func TestService_StartStopCycles(t *testing.T) {
	f := newFixture(t, testConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Start("cam1"))
		f.eventuallyPublished(t, "cam1")
		require.NoError(t, f.svc.Stop("cam1"))
	}

	opens, closes := f.src.counts()
	assert.Equal(t, opens, closes)
	starts, stops := f.seg.counts()
	assert.Equal(t, 3, starts)
	assert.Equal(t, starts, stops)
}
