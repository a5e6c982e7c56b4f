package detect

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

const (
	dnnInputSize     = 416
	dnnMinConfidence = 0.3
)

// DNNEngine runs a darknet YOLO model in-process through OpenCV's DNN module.
// The net is not safe for concurrent use, so Infer holds a mutex.
type DNNEngine struct {
	mu         sync.Mutex
	net        gocv.Net
	outputs    []string
	classNames []string
}

// NewDNNEngine loads the weights, network config and class names files.
func NewDNNEngine(weightsPath, configPath, namesPath string) (*DNNEngine, error) {
	names, err := os.ReadFile(namesPath)
	if err != nil {
		return nil, fmt.Errorf("read class names: %w", err)
	}

	net := gocv.ReadNet(weightsPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("load network from %s and %s", weightsPath, configPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	var outputs []string
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		outputs = append(outputs, layer.GetName())
		layer.Close()
	}

	return &DNNEngine{
		net:        net,
		outputs:    outputs,
		classNames: ParseClassNames(string(names)),
	}, nil
}

// Infer implements Engine. ctx is only checked before the forward pass since
// OpenCV cannot interrupt it.
func (e *DNNEngine) Infer(ctx context.Context, frame gocv.Mat) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrInference)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(dnnInputSize, dnnInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	e.net.SetInput(blob, "")

	outs := e.net.ForwardLayers(e.outputs)
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()

	var dets []Detection
	for _, out := range outs {
		dets = append(dets, e.decode(out)...)
	}
	return dets, nil
}

// decode reads darknet rows laid out as [cx, cy, w, h, objectness, class scores...].
func (e *DNNEngine) decode(out gocv.Mat) []Detection {
	var dets []Detection
	if out.Cols() <= 5 {
		return nil
	}
	for i := 0; i < out.Rows(); i++ {
		scores := out.Region(image.Rect(5, i, out.Cols(), i+1))
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(scores)
		scores.Close()

		classID := maxLoc.X
		if maxVal <= dnnMinConfidence || classID >= len(e.classNames) {
			continue
		}
		dets = append(dets, Detection{Label: e.classNames[classID], Confidence: float64(maxVal)})
	}
	return dets
}

// Close releases the network.
func (e *DNNEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}

// ParseClassNames splits a darknet .names file, one label per line.
func ParseClassNames(s string) []string {
	var names []string
	for _, line := range strings.Split(s, "\n") {
		names = append(names, strings.TrimSpace(line))
	}
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	return names
}
