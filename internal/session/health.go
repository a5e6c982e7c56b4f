package session

import (
	"bytes"
	"regexp"
	"strconv"
	"time"
)

// State is the health of a running recording process as judged from its
// reported encoding rate.
type State int

const (
	Healthy State = iota
	Degraded
	Killed
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// Health tracks the throughput state machine:
//
//	Healthy -> (sample below floor) -> Degraded(since) -> (grace elapsed) -> Killed
//
// Any sample at or above the floor returns Degraded to Healthy. Killed is final.
type Health struct {
	floor float64
	grace time.Duration

	state   State
	since   time.Time
	min     float64
	samples int
}

// NewHealth returns a Health in the Healthy state.
func NewHealth(floor float64, grace time.Duration) *Health {
	return &Health{floor: floor, grace: grace}
}

// Observe feeds one throughput sample taken at now.
func (h *Health) Observe(fps float64, now time.Time) State {
	if h.state == Killed {
		return Killed
	}
	h.samples++
	if h.samples == 1 || fps < h.min {
		h.min = fps
	}
	if fps >= h.floor {
		h.state = Healthy
		h.since = time.Time{}
		return h.state
	}
	if h.state == Healthy {
		h.state = Degraded
		h.since = now
		return h.state
	}
	return h.Tick(now)
}

// Tick re-evaluates the grace period without a new sample, so a process that
// goes quiet after a low reading is still caught.
func (h *Health) Tick(now time.Time) State {
	if h.state == Degraded && now.Sub(h.since) > h.grace {
		h.state = Killed
	}
	return h.state
}

// State returns the current state.
func (h *Health) State() State { return h.state }

// Min returns the lowest sample seen and whether any sample was seen.
func (h *Health) Min() (float64, bool) { return h.min, h.samples > 0 }

// Samples returns how many throughput samples were observed.
func (h *Health) Samples() int { return h.samples }

var fpsPattern = regexp.MustCompile(`fps=\s*([0-9]+(?:\.[0-9]+)?)`)

// ParseFPS extracts the encoder rate from an ffmpeg progress line such as
// "frame=  120 fps= 14.9 q=28.0 size=     512kB time=00:00:08.00".
func ParseFPS(line string) (float64, bool) {
	m := fpsPattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, false
	}
	fps, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return fps, true
}

// scanProgressLines is a bufio.SplitFunc that ends a token at '\n' or '\r';
// ffmpeg rewrites its progress line in place with carriage returns.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, bytes.TrimRight(data[:i], "\r\n"), nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tail keeps the last few stderr lines for diagnostics.
type tail struct {
	lines []string
	max   int
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) add(line string) {
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tail) snapshot() []string {
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}
