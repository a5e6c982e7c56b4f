// Package motion implements the cheap frame-differencing trigger that decides
// whether a frame is worth sending to the object detector.
package motion

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// DefaultMinArea is the contour area, in pixels², a change must exceed.
const DefaultMinArea = 4000

const (
	blurKernel         = 11
	intensityThreshold = 50
	dilateIterations   = 3
)

var (
	// ErrFrameShapeMismatch is returned when the two frames differ in size or
	// pixel type, which happens when the camera is reconfigured mid-stream.
	ErrFrameShapeMismatch = errors.New("frame shape mismatch")

	// ErrEmptyFrame is returned when either frame carries no pixels.
	ErrEmptyFrame = errors.New("empty frame")
)

// Signal is the outcome of comparing one frame pair.
type Signal struct {
	Triggered bool
	// Areas holds the area of every changed region that was found.
	Areas   []float64
	MaxArea float64
}

// Detector compares consecutive frames. It holds no state between calls.
type Detector struct {
	minArea float64
}

// NewDetector returns a Detector that triggers on a region larger than
// minArea. A non-positive minArea selects DefaultMinArea.
func NewDetector(minArea float64) *Detector {
	if minArea <= 0 {
		minArea = DefaultMinArea
	}
	return &Detector{minArea: minArea}
}

// MinArea reports the configured trigger area.
func (d *Detector) MinArea() float64 {
	return d.minArea
}

// Detect diffs prev against cur: absolute difference, grayscale, blur,
// binary threshold, dilation, then external contours. It triggers when any
// contour's area is strictly greater than the minimum area.
func (d *Detector) Detect(prev, cur gocv.Mat) (Signal, error) {
	if prev.Empty() || cur.Empty() {
		return Signal{}, ErrEmptyFrame
	}
	if prev.Rows() != cur.Rows() || prev.Cols() != cur.Cols() || prev.Type() != cur.Type() {
		return Signal{}, fmt.Errorf("%w: %dx%d/%v vs %dx%d/%v", ErrFrameShapeMismatch,
			prev.Cols(), prev.Rows(), prev.Type(), cur.Cols(), cur.Rows(), cur.Type())
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(prev, cur, &diff)

	gray := gocv.NewMat()
	defer gray.Close()
	switch diff.Channels() {
	case 1:
		diff.CopyTo(&gray)
	case 4:
		gocv.CvtColor(diff, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(blurKernel, blurKernel), 0, 0, gocv.BorderDefault)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(blurred, &mask, intensityThreshold, 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	for i := 0; i < dilateIterations; i++ {
		gocv.Dilate(mask, &mask, kernel)
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	sig := Signal{Areas: make([]float64, 0, contours.Size())}
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		sig.Areas = append(sig.Areas, area)
		if area > sig.MaxArea {
			sig.MaxArea = area
		}
	}
	sig.Triggered = Exceeds(sig.Areas, d.minArea)
	return sig, nil
}

// Exceeds reports whether any area is strictly greater than minArea.
func Exceeds(areas []float64, minArea float64) bool {
	for _, a := range areas {
		if a > minArea {
			return true
		}
	}
	return false
}
