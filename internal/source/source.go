// Package source adapts OpenCV captures into the frames the pipeline consumes:
// a live camera stream, and a small sample of frames from a recorded clip.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"gocv.io/x/gocv"
)

var (
	// ErrStreamOpen is returned when the camera cannot be opened. It ends the
	// current pipeline cycle without being treated as a fault.
	ErrStreamOpen = errors.New("stream open failed")

	// ErrEndOfStream is returned by Read once the capture stops producing frames.
	ErrEndOfStream = errors.New("end of stream")
)

// Stream is an open sequence of decoded BGR frames.
type Stream interface {
	// Read decodes the next frame into dst, reusing its buffer.
	Read(dst *gocv.Mat) error
	Close() error
}

// Camera opens the configured network stream.
type Camera struct {
	url string
}

// NewCamera returns a Camera for the given stream address (rtsp://, http://,
// or a file path).
func NewCamera(streamURL string) *Camera {
	return &Camera{url: streamURL}
}

// String returns the stream address with any password masked, for logs.
func (c *Camera) String() string {
	return Redact(c.url)
}

// Open connects to the stream. Failure is reported as ErrStreamOpen.
func (c *Camera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := gocv.OpenVideoCapture(c.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStreamOpen, c, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrStreamOpen, c)
	}
	return &captureStream{vc: vc}, nil
}

type captureStream struct {
	vc *gocv.VideoCapture
}

func (s *captureStream) Read(dst *gocv.Mat) error {
	if ok := s.vc.Read(dst); !ok || dst.Empty() {
		return ErrEndOfStream
	}
	return nil
}

func (s *captureStream) Close() error {
	return s.vc.Close()
}

// Redact masks the password of a URL. Values that do not parse are returned
// unchanged.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
