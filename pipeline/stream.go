// Package pipeline runs the per-stream frame processing loop and the
// shared task pool for asynchronous work.
package pipeline

import (
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/detect"
	"github.com/roadeye/ivms/framebuf"
	"github.com/roadeye/ivms/mot"
	"github.com/roadeye/ivms/record"
	"github.com/roadeye/ivms/track"
	"github.com/roadeye/ivms/violation"
)

// FrameInput is one decoded frame with its detections. Submitting it
// transfers ownership of Img to the stream.
type FrameInput struct {
	Index      int
	Img        gocv.Mat
	Detections []detect.Detection
}

// Stream is the synchronous per-frame stage of one camera stream. One
// goroutine consumes frames in submission order, so within a stream the
// frame index only ever increases; decode and materialization tasks run
// elsewhere and never delay the next frame.
type Stream struct {
	no       int
	buffer   *framebuf.Buffer
	assigner *mot.Assigner
	tracker  *track.Tracker
	detector *violation.Detector
	mat      *record.Materializer

	in   chan FrameInput
	done chan struct{}
	log  zerolog.Logger
}

// NewStream wires one camera stream and starts its processing goroutine.
// assigner may be nil when the detection source already tracks vehicles.
func NewStream(no int, buffer *framebuf.Buffer, assigner *mot.Assigner,
	tracker *track.Tracker, detector *violation.Detector,
	mat *record.Materializer, log zerolog.Logger) *Stream {

	s := &Stream{
		no:       no,
		buffer:   buffer,
		assigner: assigner,
		tracker:  tracker,
		detector: detector,
		mat:      mat,
		in:       make(chan FrameInput, 8),
		done:     make(chan struct{}),
		log:      log.With().Int("stream", no).Logger(),
	}

	go s.loop()

	return s
}

// Submit hands a frame to the stream, blocking when it is behind.
// Frames must be submitted in increasing index order.
func (s *Stream) Submit(in FrameInput) {
	s.in <- in
}

// Close stops intake and waits for queued frames to finish
func (s *Stream) Close() {
	close(s.in)
	<-s.done
}

func (s *Stream) loop() {

	defer close(s.done)

	for in := range s.in {
		s.process(in)
	}
}

// process runs one frame through append, track, detect and tick. A panic
// anywhere loses the frame, never the stream.
func (s *Stream) process(in FrameInput) {

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Int("frame", in.Index).Interface("panic", r).
				Msg("frame processing panic")
		}
	}()

	s.buffer.Append(framebuf.Frame{Index: in.Index, Img: in.Img})

	if s.assigner != nil {
		in.Detections = s.assigner.AssignIDs(in.Detections)
	}

	slots := s.tracker.Update(in.Detections, in.Index, in.Img)

	var violDets, wheels []detect.Detection

	for _, d := range in.Detections {
		switch {
		case d.Class == detect.SteeringWheel:
			wheels = append(wheels, d)
		case d.Class.IsViolation():
			violDets = append(violDets, d)
		}
	}

	violations := s.detector.Detect(slots, violDets, wheels, in.Index)

	for _, v := range violations {

		plate := ""
		var lpr *gocv.Mat

		if slot, ok := s.tracker.Slot(v.TrackID); ok {
			plate = slot.Plate
			lpr = slot.LPRFrame
		}

		s.mat.Admit(v, plate, lpr, in.Index)
	}

	s.mat.Tick(s.no, in.Index)
}
