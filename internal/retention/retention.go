// Package retention makes the final keep-or-discard call on a recorded clip.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"motion-recorder/internal/detect"
	"motion-recorder/internal/platform/metrics"

	"gocv.io/x/gocv"
)

// ErrArtifactMissing means the session produced no file.
var ErrArtifactMissing = errors.New("artifact missing")

// Outcome is what happened to a temporary artifact.
type Outcome string

const (
	Retained  Outcome = "retained"
	Discarded Outcome = "discarded"
	Missing   Outcome = "missing"
)

// DefaultSamples is how many frames are checked when none is configured.
const DefaultSamples = 5

// Sampler extracts a bounded sample of frames from a clip. Callers close the Mats.
type Sampler interface {
	Sample(path string, n int) ([]gocv.Mat, error)
}

// Validator decides whether any of the frames contains a target class.
type Validator interface {
	CheckAny(ctx context.Context, frames []gocv.Mat) detect.Result
}

// Decision reports what Decide did.
type Decision struct {
	Outcome   Outcome
	FinalPath string
	Labels    []string
	// Frame is the index of the sampled frame that matched, or -1.
	Frame int
	// Err explains a discard. On a retained clip it reports a temp file that
	// could not be cleaned up.
	Err error
}

// Decider validates a clip and then moves it into place or deletes it.
// After Decide returns the temporary path no longer exists, unless the
// filesystem refused both the move and the delete.
type Decider struct {
	sampler   Sampler
	validator Validator
	samples   int
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewDecider returns a Decider checking up to samples frames per clip.
func NewDecider(sampler Sampler, validator Validator, samples int, log *slog.Logger, m *metrics.Metrics) *Decider {
	if samples <= 0 {
		samples = DefaultSamples
	}
	return &Decider{sampler: sampler, validator: validator, samples: samples, log: log, metrics: m}
}

// Decide validates the clip at tempPath. A clip containing a target class is
// moved to finalPath (creating its date directory); anything else is deleted.
func (d *Decider) Decide(ctx context.Context, tempPath, finalPath string) Decision {
	log := d.log.With(slog.String("path", tempPath))
	dec := d.decide(ctx, tempPath, finalPath, log)
	d.metrics.IncClips(string(dec.Outcome))

	switch dec.Outcome {
	case Retained:
		log.Info("clip retained", slog.String("final_path", dec.FinalPath), slog.Any("labels", dec.Labels), slog.Int("frame", dec.Frame))
	case Discarded:
		attrs := []any{}
		if dec.Err != nil {
			attrs = append(attrs, slog.String("error", dec.Err.Error()))
		}
		log.Info("clip discarded, no target class", attrs...)
	case Missing:
		log.Warn("session produced no clip")
	}
	return dec
}

func (d *Decider) decide(ctx context.Context, tempPath, finalPath string, log *slog.Logger) Decision {
	if _, err := os.Stat(tempPath); errors.Is(err, fs.ErrNotExist) {
		return Decision{Outcome: Missing, Frame: -1, Err: ErrArtifactMissing}
	} else if err != nil {
		return Decision{Outcome: Discarded, Frame: -1, Err: d.remove(tempPath, err)}
	}

	frames, err := d.sampler.Sample(tempPath, d.samples)
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()
	if err != nil {
		// An unreadable clip cannot be shown to contain anything.
		return Decision{Outcome: Discarded, Frame: -1, Err: d.remove(tempPath, err)}
	}

	res := d.validator.CheckAny(ctx, frames)
	if !res.Found {
		return Decision{Outcome: Discarded, Frame: -1, Err: d.remove(tempPath, res.Err)}
	}

	leftover, err := move(tempPath, finalPath)
	if err != nil {
		// The temp path must not outlive the cycle, so a clip that cannot be
		// placed is lost. Log it loudly.
		log.Error("move validated clip failed, clip discarded",
			slog.String("final_path", finalPath),
			slog.Any("labels", res.Labels),
			slog.String("error", err.Error()))
		return Decision{Outcome: Discarded, Frame: -1, Err: d.remove(tempPath, err)}
	}
	if leftover != nil {
		log.Warn("clip copied but temp file left behind", slog.String("error", leftover.Error()))
	}
	return Decision{Outcome: Retained, FinalPath: finalPath, Labels: res.Labels, Frame: res.Frame, Err: leftover}
}

// remove deletes path and returns cause joined with any delete error.
func (d *Decider) remove(path string, cause error) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(cause, fmt.Errorf("delete %s: %w", path, err))
	}
	return cause
}

var (
	rename       = os.Rename
	removeSource = os.Remove
)

// move renames src to dst, falling back to copy and delete when they sit on
// different filesystems. Once dst holds the clip, err is nil; a source that
// could not be deleted afterwards is reported as leftover.
func move(src, dst string) (leftover, err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	if err := rename(src, dst); err == nil {
		return nil, nil
	}
	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return nil, err
	}
	if err := removeSource(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s after copy: %w", src, err), nil
	}
	return nil, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
