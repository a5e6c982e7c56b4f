package session

import (
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegOptions are the encoder settings passed on every recording.
type FFmpegOptions struct {
	Binary    string
	StreamURL string
	FrameRate int
	Threads   int
	Codec     string
	Preset    string
	BufSize   string
	Scale     string
}

// DefaultFFmpegOptions mirrors what the recorder has always run with.
func DefaultFFmpegOptions(binary, streamURL string) FFmpegOptions {
	return FFmpegOptions{
		Binary:    binary,
		StreamURL: streamURL,
		FrameRate: 15,
		Threads:   1,
		Codec:     "libx264",
		Preset:    "veryfast",
		BufSize:   "2M",
		Scale:     "960:720",
	}
}

// Args builds the encoder argument list for s. The duration cap is passed to
// ffmpeg too, so a healthy run ends on its own before the hard timeout.
func (o FFmpegOptions) Args(s *Session) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	if strings.HasPrefix(o.StreamURL, "rtsp://") || strings.HasPrefix(o.StreamURL, "rtsps://") {
		args = append(args, "-rtsp_transport", "tcp", "-timeout", "5000000")
	}
	args = append(args,
		"-i", o.StreamURL,
		"-r", strconv.Itoa(o.FrameRate),
		"-vsync", "vfr",
		"-t", strconv.FormatFloat(s.Duration.Seconds(), 'f', -1, 64),
		"-threads", strconv.Itoa(o.Threads),
		"-c:v", o.Codec,
		"-preset", o.Preset,
		"-bufsize", o.BufSize,
		"-vf", "scale="+o.Scale,
		s.TempPath,
	)
	return args
}

// Command returns a CommandFunc that launches ffmpeg with these options.
func (o FFmpegOptions) Command() CommandFunc {
	return func(s *Session) *exec.Cmd {
		return exec.Command(o.Binary, o.Args(s)...)
	}
}
