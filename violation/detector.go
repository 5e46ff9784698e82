// Package violation confirms mobile phone and seatbelt violations from
// per-frame detections and the tracked vehicle slots.
package violation

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/detect"
	"github.com/roadeye/ivms/geom"
	"github.com/roadeye/ivms/track"
)

// Type is the confirmed violation kind
type Type int

const (
	TypeMobilePhone Type = iota
	TypeSeatbelt
)

func (t Type) String() string {
	switch t {
	case TypeMobilePhone:
		return "Mobile Phone"
	case TypeSeatbelt:
		return "Seatbelt"
	}
	return "Unknown"
}

// Violation is a finalized violation emitted to the caller
type Violation struct {
	ID       int64
	StreamNo int
	TrackID  int64
	Type     Type
	// TriggerFrame, TriggerTime and TriggerBox identify the moment the
	// evidence first appeared
	TriggerFrame int
	TriggerTime  string
	TriggerBox   geom.Rect
}

// TimeFormat is the compact timestamp attached to a violation; artifact
// paths and metadata slice it by position, so the width is fixed
const TimeFormat = "20060102.150405.000"

// Detector runs the per-stream violation state machine. It keeps no state
// of its own between frames; everything it learns is written into the
// vehicle slots.
type Detector struct {
	streamNo int
	cfg      config.Detector
	cam      config.Camera
	ids      *IDGenerator

	now func() time.Time
	log zerolog.Logger
}

// NewDetector creates a detector for one stream. The id generator is
// shared across streams so violation ids stay globally unique.
func NewDetector(streamNo int, cfg *config.Config, ids *IDGenerator,
	log zerolog.Logger) *Detector {

	return &Detector{
		streamNo: streamNo,
		cfg:      cfg.Detector,
		cam:      cfg.Camera,
		ids:      ids,
		now:      time.Now,
		log:      log.With().Int("stream", streamNo).Logger(),
	}
}

// Detect evaluates one frame. slots is the full current slot list for the
// stream, dets the frame's phone and belt detections and wheels the
// frame's steering wheel detections. Returns the violations finalized
// this frame, possibly none.
func (d *Detector) Detect(slots []*track.Slot, dets,
	wheels []detect.Detection, frameIndex int) []Violation {

	// nearest vehicle first so ambiguous detections resolve toward it
	active := make([]*track.Slot, 0, len(slots))

	for _, s := range slots {
		if s.LastFrame == frameIndex && !s.Sent {
			active = append(active, s)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].MaxY > active[j].MaxY
	})

	for _, s := range active {
		s.Wheel = nil
	}

	d.assignWheels(active, wheels)

	claimed := make([]bool, len(dets))

	for _, s := range active {
		if err := d.evaluateSlot(s, dets, claimed, frameIndex); err != nil {
			d.log.Error().Err(err).Int64("track", s.ID).
				Msg("slot evaluation failed")
		}
	}

	return d.finalize(slots, frameIndex)
}

// assignWheels gives each slot at most one steering wheel for this frame.
// A wheel must be fully inside the vehicle box. When a slot already holds
// one, a candidate clearly to the right wins, matching the driver seat
// position in the source footage; failing that a larger confident
// candidate wins and the displaced wheel becomes available again.
func (d *Detector) assignWheels(active []*track.Slot,
	wheels []detect.Detection) {

	taken := make([]bool, len(wheels))

	for _, s := range active {

		current := -1

		for i := range wheels {

			if taken[i] || !s.Box.Contains(wheels[i].Box) {
				continue
			}

			if current < 0 {
				current = i
				taken[i] = true
				continue
			}

			cand := &wheels[i]
			held := &wheels[current]

			replace := false

			// a whole wheel-gap to the right of the held one wins outright;
			// a candidate not clearly to the left may still win on size and
			// confidence
			if cand.Box.MinX > held.Box.MaxX+d.cam.WheelRightOfPx {
				replace = true
			} else if held.Box.MinX <= cand.Box.MaxX+d.cam.WheelRightOfPx &&
				cand.Box.Area() > held.Box.Area() && cand.Score > 0.5 {
				replace = true
			}

			if replace {
				taken[current] = false
				current = i
				taken[i] = true
			}
		}

		if current >= 0 {
			w := wheels[current]
			s.Wheel = &w
		}
	}
}

// evaluateSlot claims unprocessed violation detections for one vehicle
// and updates its counters. A detection is claimed exactly once whether
// or not it qualifies.
func (d *Detector) evaluateSlot(s *track.Slot, dets []detect.Detection,
	claimed []bool, frameIndex int) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// no wheel means no reliable driver side reference this frame
	if s.Wheel == nil {
		return nil
	}

	wheel := s.Wheel.Box

	for i := range dets {

		if claimed[i] {
			continue
		}

		claimed[i] = true
		det := dets[i]

		switch det.Class {

		case detect.Mobile:
			if det.Score < d.cfg.MobileThresh {
				continue
			}

			// the phone must plausibly be in the driver's reach, which
			// extends a fraction of the wheel width left of the wheel
			reach := wheel.MinX - d.cam.PhoneReachFactor*wheel.Width()

			if det.Box.MaxX <= reach {
				continue
			}

			s.MobileCount++

			if s.MobileCount >= 2 && !s.MobileLatched {
				s.MobileLatched = true
				s.MobileFrame = frameIndex
				s.MobileTime = d.now().Format(TimeFormat)
				s.MobileBox = det.Box
			}

		case detect.NoBelt:
			if det.Score < d.cfg.NoBeltThresh {
				continue
			}

			s.NoBeltCount++

			if s.NoBeltCount >= 1 && s.NoBeltTime == "" {
				s.NoBeltFrame = frameIndex
				s.NoBeltTime = d.now().Format(TimeFormat)
				s.NoBeltBox = det.Box
			}

		case detect.Belt:
			if det.Score < d.cfg.BeltThresh {
				continue
			}

			// belt evidence cancels an earlier transient no-belt reading
			s.NoBeltCount--
		}
	}

	return nil
}

// finalize surfaces violations from every not yet sent slot, not only
// the ones updated this frame. A latched phone violation finalizes
// immediately; a seatbelt violation must keep positive belt-absent
// evidence through the debounce window. Each type carries its own
// latched trigger moment.
func (d *Detector) finalize(slots []*track.Slot, frameIndex int) []Violation {

	var out []Violation

	for _, s := range slots {

		if s.Sent {
			continue
		}

		var vtype Type
		var frame int
		var stamp string
		var box geom.Rect

		switch {
		case s.MobileLatched:
			vtype = TypeMobilePhone
			frame, stamp, box = s.MobileFrame, s.MobileTime, s.MobileBox
		case s.NoBeltCount >= 1 && s.NoBeltTime != "" &&
			frameIndex > s.NoBeltFrame+d.cfg.DebounceFrames:
			vtype = TypeSeatbelt
			frame, stamp, box = s.NoBeltFrame, s.NoBeltTime, s.NoBeltBox
		default:
			continue
		}

		s.Sent = true
		s.ViolationID = d.ids.GetNext()

		v := Violation{
			ID:           s.ViolationID,
			StreamNo:     d.streamNo,
			TrackID:      s.ID,
			Type:         vtype,
			TriggerFrame: frame,
			TriggerTime:  stamp,
			TriggerBox:   box,
		}

		d.log.Info().Int64("violation", v.ID).Int64("track", s.ID).
			Str("type", vtype.String()).Int("frame", frame).
			Msg("violation finalized")

		out = append(out, v)
	}

	return out
}
