// Package track maintains the per-stream vehicle slots: it links plate
// detections to tracked vehicles and dispatches plate decoding without
// blocking the frame path.
package track

import (
	"image"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/detect"
	"github.com/roadeye/ivms/geom"
	"github.com/roadeye/ivms/plate"
)

// Recognizer runs plate OCR on a cropped plate image and decodes the
// detections. A nil result means no confident read.
type Recognizer interface {
	Recognize(img gocv.Mat) *plate.Result
}

// TaskPool runs a task asynchronously on a bounded worker pool. Submit
// never blocks and reports whether the task was accepted.
type TaskPool interface {
	Submit(task func()) bool
}

// PlateEvent is reported once per newly confirmed, not previously seen
// plate string
type PlateEvent struct {
	StreamNo int
	TrackID  int64
	Result   *plate.Result
	// PlateImg is the crop the plate was read from; the receiver owns it
	PlateImg gocv.Mat
}

// decodeResult carries a finished async decode back to the frame path
type decodeResult struct {
	trackID int64
	result  *plate.Result
	crop    gocv.Mat
	full    gocv.Mat
}

// resultBacklog bounds completed decodes waiting for the next frame
const resultBacklog = 32

// Tracker maintains the track id to vehicle slot map for one stream. All
// slot mutation happens on the stream's frame path: async decodes hand
// their results back over a channel that Update drains, so the frame path
// stays the single writer.
type Tracker struct {
	streamNo   int
	staleAfter int
	lpr        config.LPR
	enabled    bool

	recognizer Recognizer
	pool       TaskPool
	seen       *dedupRing
	onPlate    func(PlateEvent)

	slots   map[int64]*Slot
	results chan decodeResult

	log zerolog.Logger
}

// NewTracker creates a tracker for one stream. onPlate may be nil.
func NewTracker(streamNo int, cfg *config.Config, recognizer Recognizer,
	pool TaskPool, onPlate func(PlateEvent), log zerolog.Logger) *Tracker {

	return &Tracker{
		streamNo:   streamNo,
		staleAfter: cfg.Detector.SlotStaleFrames,
		lpr:        cfg.LPR,
		enabled:    cfg.LPR.Enabled && recognizer != nil && pool != nil,
		recognizer: recognizer,
		pool:       pool,
		seen:       newDedupRing(seenPlateCapacity),
		onPlate:    onPlate,
		slots:      make(map[int64]*Slot),
		results:    make(chan decodeResult, resultBacklog),
		log:        log.With().Int("stream", streamNo).Logger(),
	}
}

// Update processes one frame's detections: applies finished decode
// results, evicts stale slots, links plates to vehicles, refreshes slot
// state and dispatches new decode attempts. Returns the stream's current
// slots; callers must treat them as read-only except through the
// violation detector.
func (t *Tracker) Update(dets []detect.Detection, frameIndex int,
	frame gocv.Mat) []*Slot {

	t.drainResults()

	// evict slots unseen for the staleness window
	for id, slot := range t.slots {
		if slot.LastFrame+t.staleAfter < frameIndex {
			slot.Close()
			delete(t.slots, id)
		}
	}

	// partition this frame's detections; everything that is neither a
	// plate nor a vehicle is handled elsewhere
	var plates, cars []detect.Detection

	for _, d := range dets {
		switch d.Class {
		case detect.Plate:
			plates = append(plates, d)
		case detect.Car:
			// a vehicle without a track id cannot be followed across frames
			if d.TrackID != 0 {
				cars = append(cars, d)
			}
		}
	}

	plateFor := linkPlates(cars, plates)

	for _, car := range cars {

		slot, ok := t.slots[car.TrackID]

		if !ok {
			slot = newSlot(car, frameIndex)
			t.slots[car.TrackID] = slot
		} else {
			slot.LastFrame = frameIndex
			slot.Box = car.Box
			slot.MaxY = car.Box.MaxY
			slot.Score = car.Score
		}

		if slot.Plate == "" {
			if region, linked := plateFor[car.TrackID]; linked {
				r := region
				slot.PlateRegion = &r
			}
		} else {
			// confirmed read, stop feeding the decoder
			slot.PlateRegion = nil
		}
	}

	if t.enabled {
		t.dispatchDecodes(frameIndex, frame)
	}

	out := make([]*Slot, 0, len(t.slots))

	for _, slot := range t.slots {
		out = append(out, slot)
	}

	return out
}

// Slot returns the slot for a track id if present
func (t *Tracker) Slot(id int64) (*Slot, bool) {
	s, ok := t.slots[id]
	return s, ok
}

// Close frees all slot state and any decode results still in flight
func (t *Tracker) Close() {
	t.drainResults()

	for id, slot := range t.slots {
		slot.Close()
		delete(t.slots, id)
	}
}

// linkPlates greedily matches each plate to the first unmatched vehicle
// whose box fully contains the plate box. Returns vehicle track id to
// plate box.
func linkPlates(cars, plates []detect.Detection) map[int64]geom.Rect {

	out := make(map[int64]geom.Rect)

	for _, p := range plates {
		for _, c := range cars {
			if _, taken := out[c.TrackID]; taken {
				continue
			}

			if c.Box.Contains(p.Box) {
				out[c.TrackID] = p.Box
				break
			}
		}
	}

	return out
}

// dispatchDecodes submits an async decode for every slot updated this
// frame that still has a pending plate region and remaining attempt budget
func (t *Tracker) dispatchDecodes(frameIndex int, frame gocv.Mat) {

	for _, slot := range t.slots {

		if slot.LastFrame != frameIndex || slot.PlateRegion == nil ||
			slot.decoding {
			continue
		}

		crop, ok := t.cropPlate(frame, *slot.PlateRegion)

		if !ok {
			continue
		}

		if !slot.allowAttempt(slot.PlateRegion.Width()) {
			crop.Close()
			continue
		}

		// keep a copy of the full frame so the read can be evidenced even
		// after the buffer evicts it
		full := frame.Clone()
		id := slot.ID
		slot.decoding = true

		accepted := t.pool.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					t.log.Error().Int64("track", id).
						Interface("panic", r).Msg("plate decode panic")
				}
			}()

			res := t.recognizer.Recognize(crop)
			t.offerResult(decodeResult{
				trackID: id,
				result:  res,
				crop:    crop,
				full:    full,
			})
		})

		if !accepted {
			slot.decoding = false
			crop.Close()
			full.Close()
			t.log.Warn().Int64("track", id).
				Msg("decode attempt skipped, pool backlog full")
		}
	}
}

// offerResult hands a finished decode to the frame path without blocking
// the worker; when the backlog is full the result is dropped
func (t *Tracker) offerResult(r decodeResult) {
	select {
	case t.results <- r:
	default:
		r.crop.Close()
		r.full.Close()
		t.log.Warn().Int64("track", r.trackID).
			Msg("decode result backlog full, result dropped")
	}
}

// drainResults applies every finished decode to its slot. The first
// non-empty result for a slot wins; later completions never replace a
// confirmed plate.
func (t *Tracker) drainResults() {

	for {
		select {
		case r := <-t.results:
			t.applyResult(r)
		default:
			return
		}
	}
}

func (t *Tracker) applyResult(r decodeResult) {

	discard := func() {
		r.crop.Close()
		r.full.Close()
	}

	slot, ok := t.slots[r.trackID]

	if !ok {
		// slot evicted while the decode was in flight
		discard()
		return
	}

	slot.decoding = false

	if r.result == nil || r.result.FullLabel == "" || slot.Plate != "" {
		discard()
		return
	}

	crop := r.crop
	full := r.full

	slot.Plate = r.result.FullLabel
	slot.PlateImg = &crop
	slot.LPRFrame = &full
	slot.PlateRegion = nil

	t.log.Info().Int64("track", r.trackID).
		Str("plate", r.result.FullLabel).Msg("plate confirmed")

	if t.seen.Contains(r.result.FullLabel) {
		return
	}

	t.seen.Add(r.result.FullLabel)

	if t.onPlate != nil {
		t.onPlate(PlateEvent{
			StreamNo: t.streamNo,
			TrackID:  r.trackID,
			Result:   r.result,
			PlateImg: crop.Clone(),
		})
	}
}

// cropPlate extracts the padded plate region from the frame, clamped to
// the frame bounds. Crops narrower than the configured minimum are
// skipped since they never decode.
func (t *Tracker) cropPlate(frame gocv.Mat, region geom.Rect) (gocv.Mat, bool) {

	minX := int(region.MinX) - t.lpr.PadX
	minY := int(region.MinY) - t.lpr.PadY
	maxX := int(region.MaxX) + t.lpr.PadX
	maxY := int(region.MaxY) + t.lpr.PadY

	if minX < 0 {
		minX = 0
	}

	if minY < 0 {
		minY = 0
	}

	if maxX > frame.Cols() {
		maxX = frame.Cols()
	}

	if maxY > frame.Rows() {
		maxY = frame.Rows()
	}

	if maxX-minX < t.lpr.MinWidth || maxY <= minY {
		return gocv.Mat{}, false
	}

	roi := frame.Region(image.Rect(minX, minY, maxX, maxY))
	crop := roi.Clone()
	roi.Close()

	return crop, true
}
