// Package detect wraps object-detection inference and turns its output into
// the keep/skip decision used before and after recording.
package detect

import (
	"context"
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrInference marks a failed forward pass. The gate treats it as "nothing
// found" instead of failing the pipeline.
var ErrInference = errors.New("inference failed")

// Detection is one box reported by the model, already filtered by the
// engine's own confidence threshold.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// AnyTarget labels a detection from an engine that only reports whether one
// of the target classes was seen, not which one. Gates always match it.
const AnyTarget = "target"

// Engine runs a single forward pass over one frame.
type Engine interface {
	Infer(ctx context.Context, frame gocv.Mat) ([]Detection, error)
}

// Serialized guards an Engine whose model state is not safe for concurrent
// callers.
type Serialized struct {
	mu     sync.Mutex
	engine Engine
}

// NewSerialized wraps engine so that at most one Infer runs at a time.
func NewSerialized(engine Engine) *Serialized {
	return &Serialized{engine: engine}
}

// Infer implements Engine.
func (s *Serialized) Infer(ctx context.Context, frame gocv.Mat) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Infer(ctx, frame)
}
