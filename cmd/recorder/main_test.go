package main

import (
	"path/filepath"
	"testing"

	"motion-recorder/internal/orchestrator"
	"motion-recorder/internal/platform/config"
)

func TestRun_missingStreamURL(t *testing.T) {
	t.Setenv("MOTION_RECORDER_RTSP_URL", "")
	if code := run(); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRun_engineFailureClosesLedger(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MOTION_RECORDER_RTSP_URL", "rtsp://cam/stream")
	t.Setenv("MOTION_RECORDER_SESSION_DB", filepath.Join(dir, "sessions.db"))
	t.Setenv("MOTION_RECORDER_MODEL_WEIGHTS", filepath.Join(dir, "missing.weights"))
	t.Setenv("MOTION_RECORDER_MODEL_NAMES", filepath.Join(dir, "missing.names"))
	t.Setenv("LOG_LEVEL", "error")

	var opened orchestrator.Store
	openLedger = func(cfg config.Config) (orchestrator.Store, error) {
		s, err := openStore(cfg)
		opened = s
		return s, err
	}
	t.Cleanup(func() { openLedger = openStore })

	if code := run(); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if opened == nil {
		t.Fatal("ledger was never opened")
	}
	if _, err := opened.RecentSessions(1); err == nil {
		t.Error("ledger still usable after a failed start, it was not closed")
	}
}
