package track

import (
	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/detect"
	"github.com/roadeye/ivms/geom"
)

// decode attempt buckets by plate pixel width. Narrow plates rarely decode
// so each width band gets a single attempt, except the widest band which
// is worth several.
var bucketEdges = []float32{30, 40, 50, 60, 65, 70, 75, 80, 85, 90}

// maxDecodeAttempts caps the total decode attempts per vehicle
const maxDecodeAttempts = 12

// largestBucketAttempts is how many attempts the widest band allows
const largestBucketAttempts = 3

// Slot is the state a tracking id accumulates across frames for one
// physical vehicle. The tracker owns linking fields, the violation
// detector owns violation fields and the async decode task writes only the
// decode result; this field partitioning is what keeps the slot free of
// per-field locks.
type Slot struct {
	// ID is the tracker-assigned vehicle id
	ID int64
	// Box is the last known vehicle bounding box
	Box geom.Rect
	// MaxY is the bottom edge of Box, vehicles are processed nearest
	// camera first by sorting on it
	MaxY float32
	// Score of the last vehicle detection
	Score float32
	// LastFrame is the frame index of the last update
	LastFrame int

	// PlateRegion is the best plate candidate box awaiting decode, nil
	// once the plate is confirmed or when no plate is linked
	PlateRegion *geom.Rect
	// Plate is the confirmed decoded plate string, empty until a decode
	// succeeds; once set it is never replaced
	Plate string
	// PlateImg is the cropped plate image of the confirmed read
	PlateImg *gocv.Mat
	// LPRFrame is a copy of the full frame the confirmed read was made on
	LPRFrame *gocv.Mat

	// bucketAttempts counts decode attempts per width band
	bucketAttempts map[float32]int
	// decodeAttempts counts total decode attempts
	decodeAttempts int
	// decoding is true while an async decode for this slot is in flight
	decoding bool

	// Wheel is the steering wheel detection assigned to this vehicle
	// during the current frame, reset every frame
	Wheel *detect.Detection

	// MobileCount is the number of qualifying phone detections seen
	MobileCount int
	// MobileLatched is set when the phone violation trigger is recorded
	MobileLatched bool
	// NoBeltCount is the running belt evidence counter, belt-present
	// detections decrement it
	NoBeltCount int

	// MobileFrame, MobileTime and MobileBox latch the frame the phone
	// violation was confirmed on; recorded once, never overwritten
	MobileFrame int
	MobileTime  string
	MobileBox   geom.Rect

	// NoBeltFrame, NoBeltTime and NoBeltBox latch the first qualifying
	// belt-absent detection. Kept separate from the phone latch because
	// one vehicle can accumulate both kinds of evidence and each
	// violation must point at its own moment.
	NoBeltFrame int
	NoBeltTime  string
	NoBeltBox   geom.Rect

	// Sent is set once the slot's violation has been surfaced; sent slots
	// keep being tracked but are excluded from evaluation
	Sent bool
	// ViolationID is assigned at finalization
	ViolationID int64
}

// newSlot creates a slot for a vehicle seen for the first time
func newSlot(d detect.Detection, frameIndex int) *Slot {
	return &Slot{
		ID:             d.TrackID,
		Box:            d.Box,
		MaxY:           d.Box.MaxY,
		Score:          d.Score,
		LastFrame:      frameIndex,
		bucketAttempts: make(map[float32]int),
	}
}

// bucketFor returns the width band for a plate pixel width, or -1 when the
// plate is too narrow to bother decoding
func bucketFor(width float32) float32 {
	if width < bucketEdges[0] {
		return -1
	}

	bucket := bucketEdges[0]

	for _, edge := range bucketEdges[1:] {
		if width > edge {
			bucket = edge
		}
	}

	return bucket
}

// allowAttempt checks and consumes decode budget for a plate of the given
// width. At most one attempt per band, except the widest band, and a hard
// cap overall.
func (s *Slot) allowAttempt(width float32) bool {

	if s.decodeAttempts >= maxDecodeAttempts {
		return false
	}

	bucket := bucketFor(width)

	if bucket < 0 {
		return false
	}

	limit := 1

	if bucket == bucketEdges[len(bucketEdges)-1] {
		limit = largestBucketAttempts
	}

	if s.bucketAttempts[bucket] >= limit {
		return false
	}

	s.bucketAttempts[bucket]++
	s.decodeAttempts++

	return true
}

// Close frees the images retained by the slot
func (s *Slot) Close() {
	if s.PlateImg != nil {
		s.PlateImg.Close()
		s.PlateImg = nil
	}

	if s.LPRFrame != nil {
		s.LPRFrame.Close()
		s.LPRFrame = nil
	}
}
