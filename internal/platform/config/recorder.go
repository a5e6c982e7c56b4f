package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingStreamURL is the one fatal startup condition.
	ErrMissingStreamURL = errors.New("MOTION_RECORDER_RTSP_URL is not set")

	// ErrInvalidConfig wraps any value that would make the pipeline misbehave.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is built once at startup and passed to every component. It is never
// mutated afterwards.
type Config struct {
	StreamURL  string
	OutputRoot string
	ClipExt    string
	FFmpegPath string

	DetectURL     string
	DetectTimeout time.Duration
	ModelWeights  string
	ModelConfig   string
	ModelNames    string
	TargetClasses []string

	MinArea           float64
	RecordDuration    time.Duration
	MinFPS            float64
	DegradedGrace     time.Duration
	TimeoutMargin     time.Duration
	PollInterval      time.Duration
	RestartBackoff    time.Duration
	Cooldown          time.Duration
	ValidationSamples int

	SessionDB string
	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// HardTimeout is the unconditional bound on one recording session.
func (c Config) HardTimeout() time.Duration {
	return c.RecordDuration + c.TimeoutMargin
}

// FromEnv reads the recorder configuration from the environment. Call Load
// first if a .env file should be honoured.
func FromEnv() (Config, error) {
	cfg := Config{
		StreamURL:  GetEnv("MOTION_RECORDER_RTSP_URL", ""),
		OutputRoot: GetEnv("MOTION_RECORDER_SAVE_PATH", "/recordings"),
		ClipExt:    GetEnv("MOTION_RECORDER_CLIP_EXT", "mp4"),
		FFmpegPath: GetEnv("MOTION_RECORDER_FFMPEG", "ffmpeg"),

		DetectURL:     GetEnv("MOTION_RECORDER_YOLO_API", "http://localhost:5000/detect"),
		DetectTimeout: GetEnvDuration("MOTION_RECORDER_DETECT_TIMEOUT", 5*time.Second),
		ModelWeights:  GetEnv("MOTION_RECORDER_MODEL_WEIGHTS", ""),
		ModelConfig:   GetEnv("MOTION_RECORDER_MODEL_CONFIG", ""),
		ModelNames:    GetEnv("MOTION_RECORDER_MODEL_NAMES", ""),
		TargetClasses: GetEnvList("MOTION_RECORDER_TARGET_CLASSES", []string{"person", "dog", "cat"}),

		MinArea:           GetEnvFloat("MOTION_RECORDER_MIN_AREA", 4000),
		RecordDuration:    GetEnvDuration("MOTION_RECORDER_DURATION", 30*time.Second),
		MinFPS:            GetEnvFloat("MOTION_RECORDER_MIN_FPS", 5),
		DegradedGrace:     GetEnvDuration("MOTION_RECORDER_DEGRADED_GRACE", 5*time.Second),
		TimeoutMargin:     GetEnvDuration("MOTION_RECORDER_TIMEOUT_MARGIN", 10*time.Second),
		PollInterval:      GetEnvDuration("MOTION_RECORDER_POLL_INTERVAL", time.Second),
		RestartBackoff:    GetEnvDuration("MOTION_RECORDER_RESTART_BACKOFF", 5*time.Second),
		Cooldown:          GetEnvDuration("MOTION_RECORDER_COOLDOWN", 0),
		ValidationSamples: GetEnvInt("MOTION_RECORDER_VALIDATION_SAMPLES", 5),

		SessionDB: GetEnv("MOTION_RECORDER_SESSION_DB", ""),
		HTTPAddr:  GetEnv("HTTP_ADDR", ":9090"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first problem found in c.
func (c Config) Validate() error {
	if c.StreamURL == "" {
		return ErrMissingStreamURL
	}
	switch {
	case c.OutputRoot == "":
		return fmt.Errorf("%w: output root is empty", ErrInvalidConfig)
	case c.MinArea <= 0:
		return fmt.Errorf("%w: min area %v must be positive", ErrInvalidConfig, c.MinArea)
	case c.RecordDuration <= 0:
		return fmt.Errorf("%w: record duration %v must be positive", ErrInvalidConfig, c.RecordDuration)
	case c.TimeoutMargin < 0:
		return fmt.Errorf("%w: timeout margin %v is negative", ErrInvalidConfig, c.TimeoutMargin)
	case c.DegradedGrace <= 0:
		return fmt.Errorf("%w: degraded grace %v must be positive", ErrInvalidConfig, c.DegradedGrace)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval %v must be positive", ErrInvalidConfig, c.PollInterval)
	case c.RestartBackoff <= 0:
		return fmt.Errorf("%w: restart backoff %v must be positive", ErrInvalidConfig, c.RestartBackoff)
	case c.Cooldown < 0:
		return fmt.Errorf("%w: cooldown %v is negative", ErrInvalidConfig, c.Cooldown)
	case c.ValidationSamples <= 0:
		return fmt.Errorf("%w: validation samples %d must be positive", ErrInvalidConfig, c.ValidationSamples)
	case len(c.TargetClasses) == 0:
		return fmt.Errorf("%w: no target classes", ErrInvalidConfig)
	case c.ModelWeights == "" && c.DetectURL == "":
		return fmt.Errorf("%w: neither a detection endpoint nor model weights are configured", ErrInvalidConfig)
	}
	return nil
}
