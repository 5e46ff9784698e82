package mot

import (
	"github.com/rs/zerolog"

	"github.com/roadeye/ivms/detect"
)

// ByteTrack association parameters for vehicle streams
const (
	assignTrackBuffer = 30
	assignTrackThresh = 0.5
	assignHighThresh  = 0.6
	assignMatchThresh = 0.8
)

// Assigner backfills track ids on vehicle detections for streams whose
// detector emits plain per-frame boxes. One instance serves one stream
// and must see every frame in order.
type Assigner struct {
	bt  *Tracker
	log zerolog.Logger
}

// NewAssigner returns an assigner tuned for the stream frame rate
func NewAssigner(frameRate int, log zerolog.Logger) *Assigner {
	return &Assigner{
		bt: NewTracker(frameRate, assignTrackBuffer, assignTrackThresh,
			assignHighThresh, assignMatchThresh),
		log: log,
	}
}

// AssignIDs fills the TrackID of every vehicle detection the tracker can
// associate, modifying dets in place. Frames whose vehicles already carry
// ids pass through untouched so an upstream tracker always wins.
func (a *Assigner) AssignIDs(dets []detect.Detection) []detect.Detection {

	missing := false

	for _, d := range dets {
		if d.Class == detect.Car && d.TrackID == 0 {
			missing = true
			break
		}
	}

	if !missing {
		return dets
	}

	var objects []Object

	for i, d := range dets {

		if d.Class != detect.Car {
			continue
		}

		objects = append(objects, Object{
			Rect:  NewRect(d.Box.MinX, d.Box.MinY, d.Box.Width(), d.Box.Height()),
			Label: int(d.Class),
			Score: d.Score,
			ID:    int64(i),
		})
	}

	tracks, err := a.bt.Update(objects)

	if err != nil {
		a.log.Error().Err(err).Msg("track id assignment failed")
		return dets
	}

	for _, trk := range tracks {

		idx := trk.DetectionID()

		if idx < 0 || int(idx) >= len(dets) {
			continue
		}

		dets[idx].TrackID = int64(trk.TrackID())
	}

	return dets
}
