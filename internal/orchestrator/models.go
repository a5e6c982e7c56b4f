package orchestrator

import (
	"strings"
	"time"

	"motion-recorder/internal/detect"
	"motion-recorder/internal/retention"
	"motion-recorder/internal/session"
)

// SessionRecord is the ledger entry kept for every recording session.
// This also matches the JSON returned by GET /sessions.
type SessionRecord struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	TriggeredAt time.Time `json:"triggered_at" gorm:"index"`
	EndedAt     time.Time `json:"ended_at"`
	Reason      string    `json:"reason"`
	Outcome     string    `json:"outcome"`
	LiveLabels  string    `json:"live_labels"`
	ClipLabels  string    `json:"clip_labels,omitempty"`
	FinalPath   string    `json:"final_path,omitempty"`
	MinFPS      *float64  `json:"min_fps,omitempty"`
	Kills       int       `json:"kills"`
	Error       string    `json:"error,omitempty"`
}

// TableName keeps the sqlite table name stable.
func (SessionRecord) TableName() string { return "sessions" }

// newSessionRecord flattens one completed trigger into a ledger entry.
func newSessionRecord(s *session.Session, live detect.Result, dec retention.Decision) SessionRecord {
	rec := SessionRecord{
		ID:          s.ID,
		TriggeredAt: s.TriggeredAt,
		EndedAt:     s.EndedAt,
		Reason:      string(s.Reason),
		Outcome:     string(dec.Outcome),
		LiveLabels:  strings.Join(live.Labels, ","),
		ClipLabels:  strings.Join(dec.Labels, ","),
		FinalPath:   dec.FinalPath,
		Kills:       s.Kills,
	}
	if s.FPSSamples > 0 {
		min := s.MinFPS
		rec.MinFPS = &min
	}
	var errs []string
	if s.Err != nil {
		errs = append(errs, s.Err.Error())
	}
	if dec.Err != nil {
		errs = append(errs, dec.Err.Error())
	}
	rec.Error = strings.Join(errs, "; ")
	return rec
}

// Status is the liveness snapshot served by GET /healthz.
type Status struct {
	StartedAt     time.Time `json:"started_at"`
	LastFrameAt   time.Time `json:"last_frame_at,omitempty"`
	StreamOpen    bool      `json:"stream_open"`
	Recording     bool      `json:"recording"`
	Cycles        int       `json:"cycles"`
	LastCycleAt   time.Time `json:"last_cycle_at,omitempty"`
	Restarts      int       `json:"restarts"`
	LastCycleErr  string    `json:"last_cycle_error,omitempty"`
	Sessions      int       `json:"sessions"`
	ClipsRetained int       `json:"clips_retained"`
}
