package source

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrUnreadableClip means the clip exists but no frame could be decoded from it.
var ErrUnreadableClip = errors.New("clip has no readable frames")

// ClipSampler pulls a bounded, evenly spaced sample of frames out of a
// recorded clip.
type ClipSampler struct{}

// Sample returns up to n frames from the clip at path. The caller owns the
// returned Mats and must Close them.
func (ClipSampler) Sample(path string, n int) ([]gocv.Mat, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open clip %s: %w", path, err)
	}
	defer vc.Close()
	if !vc.IsOpened() {
		return nil, fmt.Errorf("open clip %s: %w", path, ErrUnreadableClip)
	}

	frames := make([]gocv.Mat, 0, n)
	read := func() bool {
		m := gocv.NewMat()
		if ok := vc.Read(&m); !ok || m.Empty() {
			m.Close()
			return false
		}
		frames = append(frames, m)
		return true
	}

	indices := SampleIndices(int(vc.Get(gocv.VideoCaptureFrameCount)), n)
	if indices == nil {
		// Container without a frame count: take the first n frames.
		for len(frames) < n && read() {
		}
	} else {
		for _, idx := range indices {
			vc.Set(gocv.VideoCapturePosFrames, float64(idx))
			if !read() {
				break
			}
		}
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("sample %s: %w", path, ErrUnreadableClip)
	}
	return frames, nil
}

// SampleIndices picks n frame indices spread across total frames, taking the
// middle of each of n equal spans. It returns nil when total is unknown.
func SampleIndices(total, n int) []int {
	if total <= 0 || n <= 0 {
		return nil
	}
	if n >= total {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, n)
	for i := range out {
		out[i] = (2*i + 1) * total / (2 * n)
	}
	return out
}
