package orchestrator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"motion-recorder/internal/detect"
	"motion-recorder/internal/motion"
	"motion-recorder/internal/retention"
	"motion-recorder/internal/session"
	"motion-recorder/internal/source"

	"gocv.io/x/gocv"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// frame returns a black 240x320 frame with a white square of the given side.
func frame(side int) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 240, 320, gocv.MatTypeCV8UC3)
	if side > 0 {
		gocv.Rectangle(&m, image.Rect(40, 40, 40+side, 40+side), color.RGBA{255, 255, 255, 0}, -1)
	}
	return m
}

// scriptedStream plays back a fixed list of frames, then reports end of
// stream or readErr.
type scriptedStream struct {
	frames  []gocv.Mat
	readErr error
	pos     int
	closed  bool
}

func (s *scriptedStream) Read(dst *gocv.Mat) error {
	if s.pos >= len(s.frames) {
		if s.readErr != nil {
			return s.readErr
		}
		return source.ErrEndOfStream
	}
	s.frames[s.pos].CopyTo(dst)
	s.pos++
	return nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	for _, f := range s.frames {
		f.Close()
	}
	return nil
}

type fakeOpener struct {
	stream *scriptedStream
	err    error
}

func (o *fakeOpener) Open(ctx context.Context) (source.Stream, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.stream, nil
}

type fakeGate struct {
	res   detect.Result
	calls int
}

func (g *fakeGate) Check(ctx context.Context, frame gocv.Mat) detect.Result {
	g.calls++
	return g.res
}

// fakeRecorder stands in for the ffmpeg supervisor: it writes a small
// artifact at the temp path and reports a completed session.
type fakeRecorder struct {
	root     string
	sessions []*session.Session
}

func (r *fakeRecorder) Record(ctx context.Context, triggeredAt time.Time) *session.Session {
	s := session.New(r.root, "mp4", triggeredAt, time.Second, 2*time.Second)
	s.StartedAt = triggeredAt
	_ = os.WriteFile(s.TempPath, []byte("clip"), 0o644)
	s.EndedAt = triggeredAt.Add(time.Second)
	s.Reason = session.ReasonCompleted
	s.MinFPS, s.FPSSamples = 14.5, 3
	r.sessions = append(r.sessions, s)
	return s
}

type fakeSampler struct{ calls int }

func (s *fakeSampler) Sample(path string, n int) ([]gocv.Mat, error) {
	s.calls++
	out := make([]gocv.Mat, n)
	for i := range out {
		out[i] = frame(0)
	}
	return out, nil
}

type fakeValidator struct{ res detect.Result }

func (v fakeValidator) CheckAny(ctx context.Context, frames []gocv.Mat) detect.Result {
	return v.res
}

type harness struct {
	svc      *Service
	repo     *LedgerRepository
	stream   *scriptedStream
	gate     *fakeGate
	recorder *fakeRecorder
	sampler  *fakeSampler
}

func newHarness(t *testing.T, sides []int, live, clip detect.Result) *harness {
	t.Helper()
	frames := make([]gocv.Mat, len(sides))
	for i, side := range sides {
		frames[i] = frame(side)
	}
	h := &harness{
		repo:     NewLedgerRepository(),
		stream:   &scriptedStream{frames: frames},
		gate:     &fakeGate{res: live},
		recorder: &fakeRecorder{root: t.TempDir()},
		sampler:  &fakeSampler{},
	}
	decider := retention.NewDecider(h.sampler, fakeValidator{res: clip}, 5, discardLogger(), nil)
	h.svc = NewService(Deps{
		Opener:   &fakeOpener{stream: h.stream},
		Motion:   motion.NewDetector(motion.DefaultMinArea),
		Gate:     h.gate,
		Recorder: h.recorder,
		Retainer: decider,
		Repo:     h.repo,
	}, 0, discardLogger(), nil)
	t.Cleanup(func() { h.stream.Close() })
	return h
}

var (
	noTarget = detect.Result{Frame: -1}
	person   = detect.Result{Found: true, Labels: []string{"person"}, Frame: 0}
)

func TestService_RunCycle_noMotion(t *testing.T) {
	h := newHarness(t, []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, person, person)

	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if h.gate.calls != 0 || len(h.recorder.sessions) != 0 {
		t.Errorf("no motion should not reach the gate: gate=%d sessions=%d", h.gate.calls, len(h.recorder.sessions))
	}
	if h.stream.pos != 10 {
		t.Errorf("read %d frames, want all 10", h.stream.pos)
	}
}

func TestService_RunCycle_motionWithoutTarget(t *testing.T) {
	h := newHarness(t, []int{0, 120, 120}, noTarget, person)

	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if h.gate.calls != 1 {
		t.Errorf("gate calls = %d, want 1", h.gate.calls)
	}
	if len(h.recorder.sessions) != 0 {
		t.Errorf("gate miss must not record, got %d sessions", len(h.recorder.sessions))
	}
	if st := h.repo.Status(); st.Sessions != 0 {
		t.Errorf("ledger should be empty, got %d", st.Sessions)
	}
}

func TestService_RunCycle_retainsValidatedClip(t *testing.T) {
	// Motion appears at the fifth frame.
	h := newHarness(t, []int{0, 0, 0, 0, 120, 0, 0}, person, person)

	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(h.recorder.sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(h.recorder.sessions))
	}
	s := h.recorder.sessions[0]
	if _, err := os.Stat(s.FinalPath); err != nil {
		t.Errorf("final clip missing: %v", err)
	}
	if _, err := os.Stat(s.TempPath); !os.IsNotExist(err) {
		t.Errorf("temp clip should be gone: %v", err)
	}
	if filepath.Dir(filepath.Dir(s.FinalPath)) != h.recorder.root {
		t.Errorf("final path %s not under a date dir of %s", s.FinalPath, h.recorder.root)
	}

	recs, _ := h.repo.RecentSessions(10)
	if len(recs) != 1 {
		t.Fatalf("ledger = %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.ID != s.ID || got.Outcome != string(retention.Retained) || got.Reason != string(session.ReasonCompleted) {
		t.Errorf("record = %+v", got)
	}
	if got.LiveLabels != "person" || got.ClipLabels != "person" || got.MinFPS == nil || *got.MinFPS != 14.5 {
		t.Errorf("record = %+v", got)
	}
	if st := h.repo.Status(); st.Recording || st.ClipsRetained != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestService_RunCycle_discardsUnvalidatedClip(t *testing.T) {
	h := newHarness(t, []int{0, 120, 0, 0}, person, noTarget)

	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(h.recorder.sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(h.recorder.sessions))
	}
	s := h.recorder.sessions[0]
	for _, p := range []string{s.TempPath, s.FinalPath, filepath.Dir(s.FinalPath)} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist: %v", p, err)
		}
	}
	recs, _ := h.repo.RecentSessions(1)
	if len(recs) != 1 || recs[0].Outcome != string(retention.Discarded) || recs[0].FinalPath != "" {
		t.Errorf("record = %+v", recs)
	}
}

func TestService_RunCycle_freshFramesAfterSession(t *testing.T) {
	// The frame after the session differs from the triggering one. Comparing
	// against it would trigger again; a fresh pair must be read instead.
	h := newHarness(t, []int{0, 120, 0, 0}, person, person)

	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if h.gate.calls != 1 {
		t.Errorf("gate calls = %d, want 1", h.gate.calls)
	}
}

func TestService_RunCycle_streamOpenFailure(t *testing.T) {
	repo := NewLedgerRepository()
	svc := NewService(Deps{
		Opener: &fakeOpener{err: source.ErrStreamOpen},
		Repo:   repo,
	}, 0, discardLogger(), nil)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Errorf("open failure should end the cycle cleanly, got %v", err)
	}
	if repo.Status().StreamOpen {
		t.Error("stream should not be marked open")
	}
}

func TestService_RunCycle_readErrorAborts(t *testing.T) {
	h := newHarness(t, []int{0}, person, person)
	h.stream.readErr = errors.New("decoder crashed")

	err := h.svc.RunCycle(context.Background())
	if err == nil || !errors.Is(err, h.stream.readErr) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
}

func TestService_RunCycle_cancelled(t *testing.T) {
	h := newHarness(t, []int{0, 0, 0}, person, person)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.svc.RunCycle(ctx); err != nil {
		t.Errorf("cancellation is not an error, got %v", err)
	}
	if h.stream.pos != 1 {
		t.Errorf("read %d frames after cancel, want 1", h.stream.pos)
	}
}

func TestService_RunCycle_shapeMismatchAborts(t *testing.T) {
	h := newHarness(t, nil, person, person)
	h.stream.frames = []gocv.Mat{
		frame(0),
		gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3),
	}

	err := h.svc.RunCycle(context.Background())
	if !errors.Is(err, motion.ErrFrameShapeMismatch) {
		t.Errorf("expected ErrFrameShapeMismatch, got %v", err)
	}
}
