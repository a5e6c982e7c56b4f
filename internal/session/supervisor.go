package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"motion-recorder/internal/platform/metrics"
)

const (
	// killWait bounds how long we wait for the kernel to reap a SIGKILLed process.
	killWait = 2 * time.Second
	// drainWait bounds how long stderr is drained after the process exits.
	drainWait = 500 * time.Millisecond
	tailLines = 20
)

// CommandFunc builds the (unstarted) recording process for a session.
// Stdout and Stderr are set by the Supervisor.
type CommandFunc func(s *Session) *exec.Cmd

// Options configure a Supervisor.
type Options struct {
	Root          string
	Ext           string
	Duration      time.Duration
	TimeoutMargin time.Duration
	MinFPS        float64
	Grace         time.Duration
	PollInterval  time.Duration
}

// Supervisor runs one recording process at a time under two watchdogs: the
// throughput monitor (soft) and the hard timeout. Whichever fires first
// decides the session's Reason.
type Supervisor struct {
	opts    Options
	command CommandFunc
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewSupervisor returns a Supervisor. m may be nil.
func NewSupervisor(opts Options, command CommandFunc, log *slog.Logger, m *metrics.Metrics) *Supervisor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Supervisor{opts: opts, command: command, log: log, metrics: m}
}

// HardTimeout is the unconditional bound on one session.
func (sv *Supervisor) HardTimeout() time.Duration {
	return sv.opts.Duration + sv.opts.TimeoutMargin
}

// Record starts a session for a trigger at triggeredAt and returns once its
// process is gone. It never blocks much past HardTimeout. Failures are
// reported on the returned Session, which always carries a Reason.
func (sv *Supervisor) Record(ctx context.Context, triggeredAt time.Time) *Session {
	s := New(sv.opts.Root, sv.opts.Ext, triggeredAt, sv.opts.Duration, sv.HardTimeout())
	log := sv.log.With(slog.String("session_id", s.ID), slog.String("path", s.TempPath))

	sv.metrics.SetSessionActive(true)
	defer sv.metrics.SetSessionActive(false)

	sv.run(ctx, s, log)

	sv.metrics.IncSessions(string(s.Reason))
	attrs := []any{
		slog.String("reason", string(s.Reason)),
		slog.Duration("elapsed", s.Elapsed()),
		slog.Int("fps_samples", s.FPSSamples),
	}
	if s.FPSSamples > 0 {
		attrs = append(attrs, slog.Float64("min_fps", s.MinFPS))
	}
	if s.Err != nil {
		attrs = append(attrs, slog.String("error", s.Err.Error()))
	}
	if s.Reason == ReasonCompleted && s.Err == nil {
		log.Info("recording finished", attrs...)
	} else {
		log.Warn("recording ended abnormally", append(attrs, slog.Any("stderr_tail", s.StderrTail))...)
	}
	return s
}

func (sv *Supervisor) run(ctx context.Context, s *Session, log *slog.Logger) {
	if err := os.MkdirAll(sv.opts.Root, 0o755); err != nil {
		s.Reason = ReasonSpawnFailed
		s.Err = fmt.Errorf("%w: create output root: %v", ErrSpawn, err)
		return
	}

	cmd := sv.command(s)
	cmd.Stdout = nil
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		s.Reason = ReasonSpawnFailed
		s.Err = fmt.Errorf("%w: stderr pipe: %v", ErrSpawn, err)
		return
	}
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stderrW.Close()
		stderrR.Close()
		s.Reason = ReasonSpawnFailed
		s.Err = fmt.Errorf("%w: %v", ErrSpawn, err)
		return
	}
	// The child holds its own copy; ours must go so EOF arrives when it exits.
	stderrW.Close()

	s.PID = cmd.Process.Pid
	s.StartedAt = time.Now()
	log.Info("recording started",
		slog.Int("pid", s.PID),
		slog.Duration("duration", s.Duration),
		slog.Duration("hard_timeout", s.HardTimeout))

	p := &process{proc: cmd.Process}
	verdict := &verdict{}

	exited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		p.markExited()
		exited <- err
	}()

	monCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	eof := make(chan struct{})
	monDone := make(chan monitorResult, 1)
	go func() {
		monDone <- sv.monitor(monCtx, stderrR, eof, log, func() {
			if verdict.set(ReasonHealthKilled) {
				log.Warn("throughput below floor past grace period, terminating",
					slog.Float64("min_fps", sv.opts.MinFPS),
					slog.Duration("grace", sv.opts.Grace))
			}
			p.terminate()
		})
	}()

	hard := time.NewTimer(s.HardTimeout)
	defer hard.Stop()

	var waitErr error
	select {
	case waitErr = <-exited:
	case <-hard.C:
		if verdict.set(ReasonHardTimeout) {
			log.Warn("hard timeout reached, killing recording process")
		}
		s.Kills += p.kill()
		waitErr = awaitExit(exited, log)
	case <-ctx.Done():
		verdict.set(ReasonCancelled)
		s.Kills += p.kill()
		waitErr = awaitExit(exited, log)
	}
	verdict.set(ReasonCompleted)
	s.EndedAt = time.Now()

	select {
	case <-eof:
	case <-time.After(drainWait):
	}
	stopMonitor()
	stderrR.Close()
	res := <-monDone

	s.Reason = verdict.get()
	s.MinFPS, s.FPSSamples = res.minFPS, res.samples
	s.StderrTail = res.tail
	if waitErr != nil && s.Reason == ReasonCompleted {
		s.Err = fmt.Errorf("recording process exited: %w", waitErr)
	}
}

// awaitExit waits for the reaper goroutine after a SIGKILL, bounded by killWait.
func awaitExit(exited <-chan error, log *slog.Logger) error {
	select {
	case err := <-exited:
		return err
	case <-time.After(killWait):
		log.Error("recording process did not exit after kill")
		return fmt.Errorf("process not reaped within %v", killWait)
	}
}

type monitorResult struct {
	minFPS  float64
	samples int
	tail    []string
}

// monitor reads the process's stderr and drives the Health state machine.
// Lines are read on their own goroutine so a silent process never blocks the
// poll ticker. onKill is called once when Health reaches Killed.
func (sv *Supervisor) monitor(ctx context.Context, stderr io.Reader, eof chan<- struct{}, log *slog.Logger, onKill func()) monitorResult {
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		sc.Split(scanProgressLines)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	health := NewHealth(sv.opts.MinFPS, sv.opts.Grace)
	recent := newTail(tailLines)
	ticker := time.NewTicker(sv.opts.PollInterval)
	defer ticker.Stop()

	result := func() monitorResult {
		minFPS, _ := health.Min()
		return monitorResult{minFPS: minFPS, samples: health.Samples(), tail: recent.snapshot()}
	}

	killed := false
	in := lines
	for {
		select {
		case <-ctx.Done():
			return result()
		case line, ok := <-in:
			if !ok {
				in = nil
				close(eof)
				continue
			}
			recent.add(line)
			fps, ok := ParseFPS(line)
			if !ok {
				continue
			}
			prev := health.State()
			state := health.Observe(fps, time.Now())
			sv.metrics.SetThroughput(fps)
			log.Debug("throughput", slog.Float64("fps", fps), slog.String("state", state.String()))
			if state == Degraded && prev == Healthy {
				log.Info("throughput below floor", slog.Float64("fps", fps), slog.Float64("floor", sv.opts.MinFPS))
			}
		case <-ticker.C:
			health.Tick(time.Now())
		}
		if health.State() == Killed && !killed {
			killed = true
			onKill()
		}
	}
}

// process guards signals so nothing is sent once the child has been reaped.
type process struct {
	mu     sync.Mutex
	proc   *os.Process
	exited bool
}

func (p *process) markExited() {
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()
}

// terminate asks the process to stop, letting the encoder finalize the file.
func (p *process) terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		p.proc.Signal(syscall.SIGTERM)
	}
}

// kill forces the process down and reports how many kills were sent.
func (p *process) kill() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return 0
	}
	if err := p.proc.Kill(); err != nil {
		return 0
	}
	return 1
}

// verdict records the first termination reason.
type verdict struct {
	mu     sync.Mutex
	reason Reason
}

func (v *verdict) set(r Reason) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.reason != "" {
		return false
	}
	v.reason = r
	return true
}

func (v *verdict) get() Reason {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reason
}
