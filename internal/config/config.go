package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// NATS (frame store bucket + event publishing)
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	FrameBucket        string

	// Persistence
	DatabasePath    string
	EntityTypesPath string

	// Capture
	CaptureFPS           int
	OutputWidth          int
	OutputHeight         int
	JPEGQuality          int
	ClipDuration         time.Duration
	ClipOutputDir        string
	SegmentTime          time.Duration
	LivenessThreshold    time.Duration
	ReconnectTimeout     time.Duration
	MaxReconnectAttempts int
	ReconnectPause       time.Duration
	ReadRetryPause       time.Duration

	// Detection
	SamplingInterval time.Duration

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "worker-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// NATS
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		FrameBucket:        getEnv("FRAME_BUCKET", "current-frames"),

		// Persistence
		DatabasePath:    getEnv("DATABASE_PATH", "vidflex.db"),
		EntityTypesPath: getEnv("ENTITY_TYPES_PATH", "entity_types.yaml"),

		// Capture
		CaptureFPS:           getEnvInt("CAPTURE_FPS", 15),
		OutputWidth:          getEnvInt("OUTPUT_WIDTH", 1280),
		OutputHeight:         getEnvInt("OUTPUT_HEIGHT", 720),
		JPEGQuality:          getEnvInt("JPEG_QUALITY", 90),
		ClipDuration:         getEnvDuration("CLIP_DURATION", 30*time.Second),
		ClipOutputDir:        getEnv("CLIP_OUTPUT_DIR", "tmp/video_clip"),
		SegmentTime:          getEnvDuration("SEGMENT_TIME", 6*time.Second),
		LivenessThreshold:    getEnvDuration("LIVENESS_THRESHOLD", 1*time.Second),
		ReconnectTimeout:     getEnvDuration("RECONNECT_TIMEOUT", 5*time.Second),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 5),
		ReconnectPause:       getEnvDuration("RECONNECT_PAUSE", 1*time.Second),
		ReadRetryPause:       getEnvDuration("READ_RETRY_PAUSE", 100*time.Millisecond),

		// Detection
		SamplingInterval: getEnvDuration("SAMPLING_INTERVAL", 0),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// FrameInterval returns the pacing interval between capture reads.
func (c *Config) FrameInterval() time.Duration {
	if c.CaptureFPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.CaptureFPS)
}

// DetectionInterval returns the consumer sampling interval. When
// SAMPLING_INTERVAL is unset it follows the capture frame rate.
func (c *Config) DetectionInterval() time.Duration {
	if c.SamplingInterval > 0 {
		return c.SamplingInterval
	}
	return c.FrameInterval()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
