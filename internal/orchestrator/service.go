package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"motion-recorder/internal/detect"
	"motion-recorder/internal/motion"
	"motion-recorder/internal/platform/metrics"
	"motion-recorder/internal/retention"
	"motion-recorder/internal/session"
	"motion-recorder/internal/source"

	"gocv.io/x/gocv"
)

// Opener connects to the frame source.
type Opener interface {
	Open(ctx context.Context) (source.Stream, error)
}

// MotionDetector compares two consecutive frames.
type MotionDetector interface {
	Detect(prev, cur gocv.Mat) (motion.Signal, error)
}

// LiveGate checks the triggering frame for a target class.
type LiveGate interface {
	Check(ctx context.Context, frame gocv.Mat) detect.Result
}

// Recorder runs one recording session to completion.
type Recorder interface {
	Record(ctx context.Context, triggeredAt time.Time) *session.Session
}

// Retainer keeps or discards a session's artifact.
type Retainer interface {
	Decide(ctx context.Context, tempPath, finalPath string) retention.Decision
}

// Service is one pass of the pipeline: open the stream, read frame pairs,
// and for each confirmed trigger record, validate and retain a clip.
type Service struct {
	opener   Opener
	motion   MotionDetector
	gate     LiveGate
	recorder Recorder
	retainer Retainer
	repo     Repository
	cooldown time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Opener   Opener
	Motion   MotionDetector
	Gate     LiveGate
	Recorder Recorder
	Retainer Retainer
	Repo     Repository
}

// NewService wires a Service. cooldown is an idle pause after each session.
// m may be nil.
func NewService(deps Deps, cooldown time.Duration, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		opener:   deps.Opener,
		motion:   deps.Motion,
		gate:     deps.Gate,
		recorder: deps.Recorder,
		retainer: deps.Retainer,
		repo:     deps.Repo,
		cooldown: cooldown,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// RunCycle runs the pipeline until the stream ends or ctx is cancelled.
// A stream that cannot be opened or that ends is a normal outcome and
// returns nil. Any other error aborts the cycle and is for the caller to
// log and back off on.
func (s *Service) RunCycle(ctx context.Context) error {
	stream, err := s.opener.Open(ctx)
	if err != nil {
		if errors.Is(err, source.ErrStreamOpen) {
			s.metrics.IncStreamFailures()
			s.log.Warn("camera open failed", slog.String("error", err.Error()))
			return nil
		}
		return err
	}
	defer stream.Close()
	s.repo.SetStreamOpen(true)
	s.log.Info("camera opened")

	prev, cur := gocv.NewMat(), gocv.NewMat()
	defer func() {
		prev.Close()
		cur.Close()
	}()

	if done, err := s.read(stream, &prev); done || err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if done, err := s.read(stream, &cur); done || err != nil {
			return err
		}

		sig, err := s.motion.Detect(prev, cur)
		if err != nil {
			return fmt.Errorf("motion detection: %w", err)
		}
		if sig.Triggered && s.confirmAndRecord(ctx, cur, sig) {
			// Frames buffered while recording are stale; start a fresh pair.
			if done, err := s.read(stream, &prev); done || err != nil {
				return err
			}
			continue
		}
		prev, cur = cur, prev
	}
}

// read reads one frame into dst. done is true at end of stream.
func (s *Service) read(stream source.Stream, dst *gocv.Mat) (done bool, err error) {
	if err := stream.Read(dst); err != nil {
		if errors.Is(err, source.ErrEndOfStream) {
			s.log.Info("stream ended")
			return true, nil
		}
		return true, fmt.Errorf("read frame: %w", err)
	}
	s.repo.FrameRead(s.now())
	return false, nil
}

// confirmAndRecord gates a motion trigger and, if confirmed, runs a full
// session. It reports whether a session ran.
func (s *Service) confirmAndRecord(ctx context.Context, frame gocv.Mat, sig motion.Signal) bool {
	s.metrics.IncMotionTriggers()
	s.log.Info("motion detected", slog.Float64("max_area", sig.MaxArea), slog.Int("regions", len(sig.Areas)))

	live := s.gate.Check(ctx, frame)
	if !live.Found {
		s.log.Info("motion without target class, not recording")
		return false
	}
	s.log.Info("target class confirmed, recording", slog.Any("labels", live.Labels))

	s.repo.SetRecording(true)
	sess := s.recorder.Record(ctx, s.now())
	// Finish the keep/discard decision even during shutdown so the temp
	// artifact never outlives the cycle.
	dec := s.retainer.Decide(context.WithoutCancel(ctx), sess.TempPath, sess.FinalPath)
	s.repo.SetRecording(false)

	if err := s.repo.RecordSession(newSessionRecord(sess, live, dec)); err != nil {
		s.log.Error("save session record failed", slog.String("session_id", sess.ID), slog.String("error", err.Error()))
	}

	if s.cooldown > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(s.cooldown):
		}
	}
	return true
}
