package detect

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"motion-recorder/internal/platform/metrics"

	"gocv.io/x/gocv"
)

// Gate stages, used as the metrics label.
const (
	StageLive = "live"
	StageClip = "clip"
)

// DefaultTargets are the classes worth recording when none are configured.
var DefaultTargets = []string{"person", "dog", "cat"}

// Result is the outcome of a gate check.
type Result struct {
	Found bool
	// Labels are the matching target classes, sorted.
	Labels []string
	// Frame is the index of the frame that matched, or -1.
	Frame int
	// Err is the last inference error seen, if any. It never makes Found true.
	Err error
}

// Gate decides whether a frame (or a sample of frames) contains one of the
// target classes.
type Gate struct {
	engine  Engine
	targets map[string]struct{}
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewGate returns a Gate over engine. Labels are compared case-insensitively.
// m may be nil.
func NewGate(engine Engine, targets []string, log *slog.Logger, m *metrics.Metrics) *Gate {
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &Gate{engine: engine, targets: set, log: log, metrics: m}
}

// Check is the live gate: one inference pass on the triggering frame.
func (g *Gate) Check(ctx context.Context, frame gocv.Mat) Result {
	res := g.check(ctx, frame, 0)
	g.metrics.ObserveGate(StageLive, res.Found)
	return res
}

// CheckAny is the post-recording validator. It runs the frames in order and
// stops at the first one that contains a target class.
func (g *Gate) CheckAny(ctx context.Context, frames []gocv.Mat) Result {
	res := Result{Frame: -1}
	for i, f := range frames {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			break
		}
		r := g.check(ctx, f, i)
		if r.Found {
			res = r
			break
		}
		if r.Err != nil {
			res.Err = r.Err
		}
	}
	g.metrics.ObserveGate(StageClip, res.Found)
	return res
}

func (g *Gate) check(ctx context.Context, frame gocv.Mat, idx int) Result {
	dets, err := g.engine.Infer(ctx, frame)
	if err != nil {
		g.metrics.IncInferenceErrors()
		g.log.Warn("inference failed, treating as no detection",
			slog.Int("frame", idx),
			slog.String("error", err.Error()))
		return Result{Frame: -1, Err: err}
	}
	labels := g.Match(dets)
	if len(labels) == 0 {
		g.log.Debug("no target class", slog.Int("frame", idx), slog.Int("detections", len(dets)))
		return Result{Frame: -1}
	}
	return Result{Found: true, Labels: labels, Frame: idx}
}

// Match returns the sorted, de-duplicated target labels present in dets.
func (g *Gate) Match(dets []Detection) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range dets {
		label := strings.ToLower(strings.TrimSpace(d.Label))
		if _, ok := g.targets[label]; !ok && label != AnyTarget {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
