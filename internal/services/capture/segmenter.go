package capture

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"vidflex-worker-go/internal/config"
)

// Segmenter mirrors a source into time-sliced HLS clips. The supervisor owns
// its lifecycle but is agnostic to its implementation.
type Segmenter interface {
	Start() error
	// Stop terminates the process and waits for it to exit.
	Stop()
	PlaylistPath() string
}

// SegmenterFactory builds a segmenter for a stream. The default factory
// spawns ffmpeg; tests inject fakes.
type SegmenterFactory func(cfg *config.Config, streamID string) Segmenter

// streamSlug returns a filesystem-friendly token for a stream identifier,
// the last path segment of the source URI.
func streamSlug(streamID string) string {
	slug := path.Base(streamID)
	if slug == "" || slug == "." || slug == "/" {
		return "stream"
	}
	return slug
}

// hlsPlaylistPath is where the segmenter writes its playlist for a stream.
func hlsPlaylistPath(cfg *config.Config, streamID string) string {
	return filepath.Join(cfg.ClipOutputDir, streamSlug(streamID)+"_hls", "index.m3u8")
}

type ffmpegSegmenter struct {
	cfg      *config.Config
	streamID string
	playlist string
	cmd      *exec.Cmd
}

func newFFmpegSegmenter(cfg *config.Config, streamID string) Segmenter {
	return &ffmpegSegmenter{
		cfg:      cfg,
		streamID: streamID,
		playlist: hlsPlaylistPath(cfg, streamID),
	}
}

func (f *ffmpegSegmenter) PlaylistPath() string {
	return f.playlist
}

func (f *ffmpegSegmenter) Start() error {
	outputDir := filepath.Dir(f.playlist)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create HLS output directory: %w", err)
	}

	args := []string{
		"-y",
		"-i", f.streamID,
		"-c:v", "copy",
		"-an",
		"-f", "hls",
		"-hls_time", strconv.Itoa(int(f.cfg.SegmentTime.Seconds())),
		"-r", strconv.Itoa(f.cfg.CaptureFPS),
		"-hls_flags", "second_level_segment_duration",
		"-strftime", "1",
		"-strftime_mkdir", "1",
		"-hls_segment_filename", filepath.Join(outputDir, "%Y%m%d%H%M_%s_%%t.ts"),
		f.playlist,
	}

	f.cmd = exec.Command("ffmpeg", args...)
	stderr, err := f.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := f.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	log.Info().
		Str("stream_id", f.streamID).
		Str("playlist", f.playlist).
		Msg("FFmpeg segmenter started")

	// Forward diagnostics without ever blocking the capture loop.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Warn().
				Str("stream_id", f.streamID).
				Str("ffmpeg", scanner.Text()).
				Msg("Segmenter output")
		}
	}()

	return nil
}

func (f *ffmpegSegmenter) Stop() {
	if f.cmd == nil || f.cmd.Process == nil {
		return
	}

	if err := f.cmd.Process.Signal(os.Interrupt); err != nil {
		log.Warn().Err(err).Str("stream_id", f.streamID).Msg("Failed to send interrupt to ffmpeg")
	}

	done := make(chan error, 1)
	go func() {
		done <- f.cmd.Wait()
	}()

	select {
	case <-time.After(5 * time.Second):
		f.cmd.Process.Kill()
		log.Warn().Str("stream_id", f.streamID).Msg("Force killed ffmpeg segmenter")
	case err := <-done:
		if err != nil {
			log.Debug().Err(err).Str("stream_id", f.streamID).Msg("FFmpeg segmenter exited")
		}
	}

	log.Info().Str("stream_id", f.streamID).Msg("FFmpeg segmenter closed")
}
