package config

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_missingStreamURL(t *testing.T) {
	t.Setenv("MOTION_RECORDER_RTSP_URL", "")

	_, err := FromEnv()
	if !errors.Is(err, ErrMissingStreamURL) {
		t.Fatalf("expected ErrMissingStreamURL, got %v", err)
	}
}

func TestFromEnv_defaults(t *testing.T) {
	t.Setenv("MOTION_RECORDER_RTSP_URL", "rtsp://cam/stream")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.MinArea != 4000 {
		t.Errorf("MinArea = %v, want 4000", cfg.MinArea)
	}
	if cfg.RecordDuration != 30*time.Second {
		t.Errorf("RecordDuration = %v, want 30s", cfg.RecordDuration)
	}
	if cfg.HardTimeout() != 40*time.Second {
		t.Errorf("HardTimeout = %v, want 40s", cfg.HardTimeout())
	}
	if cfg.ValidationSamples != 5 {
		t.Errorf("ValidationSamples = %d, want 5", cfg.ValidationSamples)
	}
	want := []string{"person", "dog", "cat"}
	if !reflect.DeepEqual(cfg.TargetClasses, want) {
		t.Errorf("TargetClasses = %v, want %v", cfg.TargetClasses, want)
	}
}

func TestFromEnv_overrides(t *testing.T) {
	t.Setenv("MOTION_RECORDER_RTSP_URL", "rtsp://cam/stream")
	t.Setenv("MOTION_RECORDER_DURATION", "12")
	t.Setenv("MOTION_RECORDER_DEGRADED_GRACE", "750ms")
	t.Setenv("MOTION_RECORDER_TARGET_CLASSES", " bird , ,cat")
	t.Setenv("MOTION_RECORDER_MIN_FPS", "7.5")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.RecordDuration != 12*time.Second {
		t.Errorf("bare integer duration should be seconds, got %v", cfg.RecordDuration)
	}
	if cfg.DegradedGrace != 750*time.Millisecond {
		t.Errorf("DegradedGrace = %v", cfg.DegradedGrace)
	}
	if !reflect.DeepEqual(cfg.TargetClasses, []string{"bird", "cat"}) {
		t.Errorf("TargetClasses = %v", cfg.TargetClasses)
	}
	if cfg.MinFPS != 7.5 {
		t.Errorf("MinFPS = %v", cfg.MinFPS)
	}
}

func TestFromEnv_invalid(t *testing.T) {
	t.Setenv("MOTION_RECORDER_RTSP_URL", "rtsp://cam/stream")
	t.Setenv("MOTION_RECORDER_VALIDATION_SAMPLES", "0")

	_, err := FromEnv()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestGetEnvDuration_fallbackOnGarbage(t *testing.T) {
	t.Setenv("X_DURATION", "soon")
	if got := GetEnvDuration("X_DURATION", time.Second); got != time.Second {
		t.Errorf("got %v, want fallback", got)
	}
}
