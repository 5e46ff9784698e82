package main

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/geom"
	"github.com/roadeye/ivms/plate"
)

// replayRecognizer replays recorded OCR detections for one stream's
// plate crops. The replay source offers each frame's character set
// before submitting the frame; Recognize takes the newest set and runs
// it through the plate decoder on a pool worker, so the tracker's async
// decode path runs exactly as it would against a live OCR model.
type replayRecognizer struct {
	mu    sync.Mutex
	chars []plate.Detection
	valid bool
}

// offer replaces the pending character set; an empty frame is a no-op so
// a decode dispatched late still finds the detections it was cropped for
func (r *replayRecognizer) offer(chars []replayChar) {

	if len(chars) == 0 {
		return
	}

	dets := make([]plate.Detection, 0, len(chars))

	for _, c := range chars {

		var poly geom.Quad

		for i, p := range c.Poly {
			poly[i] = geom.Point{X: p[0], Y: p[1]}
		}

		dets = append(dets, plate.Detection{
			Label: c.Label,
			Score: c.Score,
			Poly:  poly,
		})
	}

	r.mu.Lock()
	r.chars = dets
	r.valid = true
	r.mu.Unlock()
}

// Recognize consumes the pending character set and decodes it against
// the crop width. Without a pending set there is no read.
func (r *replayRecognizer) Recognize(img gocv.Mat) *plate.Result {

	r.mu.Lock()
	dets, ok := r.chars, r.valid
	r.chars, r.valid = nil, false
	r.mu.Unlock()

	if !ok {
		return nil
	}

	return plate.Decode(dets, img.Cols())
}
