// Package session supervises the external process that records one clip:
// it spawns it, watches its throughput, and guarantees it is gone within a
// hard timeout.
package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrSpawn is recorded on a session whose process could not be started.
var ErrSpawn = errors.New("recording process spawn failed")

// Reason says how a session's process ended. When several watchdogs fire the
// first one wins.
type Reason string

const (
	ReasonCompleted    Reason = "completed"
	ReasonHealthKilled Reason = "health_killed"
	ReasonHardTimeout  Reason = "hard_timeout"
	ReasonSpawnFailed  Reason = "spawn_failed"
	ReasonCancelled    Reason = "cancelled"
)

// Session is one triggered recording.
type Session struct {
	ID          string
	TriggeredAt time.Time
	TempPath    string
	FinalPath   string
	Duration    time.Duration
	HardTimeout time.Duration

	PID       int
	StartedAt time.Time
	EndedAt   time.Time
	Reason    Reason
	// Err is the spawn error or the process exit error.
	Err error

	// MinFPS is the lowest throughput sample; valid when FPSSamples > 0.
	MinFPS     float64
	FPSSamples int
	// Kills counts forced (SIGKILL) terminations sent to the process.
	Kills      int
	StderrTail []string
}

// New builds a session for a trigger at t. Paths are derived from t:
// {root}/tmp_{HHMMSS}.{ext} while recording and
// {root}/{YYYYMMDD}/motion_{HHMMSS}.{ext} once retained.
func New(root, ext string, t time.Time, duration, hardTimeout time.Duration) *Session {
	return &Session{
		ID:          uuid.NewString(),
		TriggeredAt: t,
		TempPath:    TempPath(root, ext, t),
		FinalPath:   FinalPath(root, ext, t),
		Duration:    duration,
		HardTimeout: hardTimeout,
	}
}

// TempPath is where an in-progress clip triggered at t is written.
func TempPath(root, ext string, t time.Time) string {
	return filepath.Join(root, fmt.Sprintf("tmp_%s.%s", t.Format("150405"), ext))
}

// FinalPath is where a validated clip triggered at t is kept.
func FinalPath(root, ext string, t time.Time) string {
	return filepath.Join(root, t.Format("20060102"), fmt.Sprintf("motion_%s.%s", t.Format("150405"), ext))
}

// Elapsed is how long the process ran.
func (s *Session) Elapsed() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}
