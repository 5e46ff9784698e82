package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/detect"
	"github.com/roadeye/ivms/geom"
	"github.com/roadeye/ivms/pipeline"
)

// replayRecord is one frame's detections in the replay file, one JSON
// object per line in frame order. PlateChars carries the frame's OCR
// detections in plate crop coordinates when the recognizer saw one.
type replayRecord struct {
	Frame      int               `json:"frame"`
	Stream     int               `json:"stream"`
	Detections []replayDetection `json:"detections"`
	PlateChars []replayChar      `json:"plate_chars"`
}

type replayDetection struct {
	TrackID int64      `json:"track_id"`
	Class   int        `json:"class"`
	Score   float32    `json:"score"`
	Box     [4]float32 `json:"box"`
}

type replayChar struct {
	Label string        `json:"label"`
	Score float32       `json:"score"`
	Poly  [4][2]float32 `json:"poly"`
}

// replaySource feeds the pipeline from a recorded detections file plus
// the matching source videos, standing in for the live inference layer
type replaySource struct {
	detFile      string
	videoPattern string
	caps         map[int]*gocv.VideoCapture
	recs         []*replayRecognizer
	log          zerolog.Logger
}

func newReplaySource(detFile, videoPattern string, recs []*replayRecognizer,
	log zerolog.Logger) *replaySource {

	return &replaySource{
		detFile:      detFile,
		videoPattern: videoPattern,
		caps:         make(map[int]*gocv.VideoCapture),
		recs:         recs,
		log:          log,
	}
}

// Run pushes every replay frame into its stream until the file ends or
// the context is cancelled
func (r *replaySource) Run(ctx context.Context,
	streams []*pipeline.Stream) error {

	defer r.closeCaptures()

	f, err := os.Open(r.detFile)

	if err != nil {
		return fmt.Errorf("opening replay file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var rec replayRecord

		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			r.log.Warn().Err(err).Msg("skipping malformed replay line")
			continue
		}

		if rec.Stream < 0 || rec.Stream >= len(streams) {
			r.log.Warn().Int("stream", rec.Stream).
				Msg("skipping replay line for unknown stream")
			continue
		}

		img, ok := r.nextFrame(rec.Stream)

		if !ok {
			r.log.Warn().Int("stream", rec.Stream).Int("frame", rec.Frame).
				Msg("video exhausted before replay file")
			continue
		}

		if rec.Stream < len(r.recs) && r.recs[rec.Stream] != nil {
			r.recs[rec.Stream].offer(rec.PlateChars)
		}

		streams[rec.Stream].Submit(pipeline.FrameInput{
			Index:      rec.Frame,
			Img:        img,
			Detections: convertDetections(rec.Detections),
		})
	}

	return scanner.Err()
}

func (r *replaySource) nextFrame(streamNo int) (gocv.Mat, bool) {

	cap, ok := r.caps[streamNo]

	if !ok {
		path := fmt.Sprintf(r.videoPattern, streamNo)

		var err error
		cap, err = gocv.VideoCaptureFile(path)

		if err != nil {
			r.log.Error().Err(err).Str("file", path).
				Msg("opening replay video failed")
			return gocv.Mat{}, false
		}

		r.caps[streamNo] = cap
	}

	img := gocv.NewMat()

	if !cap.Read(&img) || img.Empty() {
		img.Close()
		return gocv.Mat{}, false
	}

	return img, true
}

func (r *replaySource) closeCaptures() {
	for _, cap := range r.caps {
		cap.Close()
	}
}

func convertDetections(in []replayDetection) []detect.Detection {

	out := make([]detect.Detection, 0, len(in))

	for _, d := range in {
		out = append(out, detect.Detection{
			TrackID: d.TrackID,
			Class:   detect.Class(d.Class),
			Score:   d.Score,
			Box: geom.Rect{
				MinX: d.Box[0],
				MinY: d.Box[1],
				MaxX: d.Box[2],
				MaxY: d.Box[3],
			},
		})
	}

	return out
}
