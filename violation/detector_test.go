package violation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/detect"
	"github.com/roadeye/ivms/geom"
	"github.com/roadeye/ivms/track"
)

func testConfig() *config.Config {
	return &config.Config{
		Detector: config.Detector{
			MobileThresh:    0.10,
			NoBeltThresh:    0.10,
			BeltThresh:      0.10,
			DebounceFrames:  30,
			SlotStaleFrames: 30,
		},
		Camera: config.Camera{
			WheelRightOfPx:   50,
			PhoneReachFactor: 0.3,
		},
	}
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()

	d := NewDetector(0, testConfig(), NewIDGenerator(), zerolog.Nop())
	d.now = func() time.Time {
		return time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
	}

	return d
}

func slot(id int64, box geom.Rect, frame int) *track.Slot {
	return &track.Slot{ID: id, Box: box, MaxY: box.MaxY, LastFrame: frame}
}

func wheelDet(box geom.Rect, score float32) detect.Detection {
	return detect.Detection{Class: detect.SteeringWheel, Score: score, Box: box}
}

func det(class detect.Class, box geom.Rect, score float32) detect.Detection {
	return detect.Detection{Class: class, Score: score, Box: box}
}

func TestPhoneViolationOnSecondSighting(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 10)
	slots := []*track.Slot{s}

	wheel := wheelDet(geom.NewRect(400, 300, 460, 360), 0.6)
	phone := det(detect.Mobile, geom.NewRect(430, 300, 470, 340), 0.4)

	out := d.Detect(slots, []detect.Detection{phone},
		[]detect.Detection{wheel}, 10)

	assert.Empty(t, out)
	assert.Equal(t, 1, s.MobileCount)
	assert.False(t, s.MobileLatched)

	s.LastFrame = 14

	out = d.Detect(slots, []detect.Detection{phone},
		[]detect.Detection{wheel}, 14)

	require.Len(t, out, 1)
	assert.Equal(t, TypeMobilePhone, out[0].Type)
	assert.Equal(t, 14, out[0].TriggerFrame)
	assert.Equal(t, 2, s.MobileCount)
	assert.True(t, s.Sent)
	assert.Equal(t, int64(1), out[0].ID)
}

func TestPhoneOutsideDriverReachIgnored(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 1)

	wheel := wheelDet(geom.NewRect(400, 300, 460, 360), 0.6)

	// right edge 380 is left of wheel.left - 0.3*width = 382
	phone := det(detect.Mobile, geom.NewRect(340, 300, 380, 340), 0.9)

	out := d.Detect([]*track.Slot{s}, []detect.Detection{phone},
		[]detect.Detection{wheel}, 1)

	assert.Empty(t, out)
	assert.Zero(t, s.MobileCount)
}

func TestNoWheelSkipsEvaluation(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 1)
	phone := det(detect.Mobile, geom.NewRect(430, 300, 470, 340), 0.9)

	out := d.Detect([]*track.Slot{s}, []detect.Detection{phone}, nil, 1)

	assert.Empty(t, out)
	assert.Zero(t, s.MobileCount)
}

func TestSeatbeltCounterEvidenceCancels(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 5)
	slots := []*track.Slot{s}

	wheel := wheelDet(geom.NewRect(400, 300, 460, 360), 0.6)
	noBelt := det(detect.NoBelt, geom.NewRect(420, 200, 500, 280), 0.5)
	belt := det(detect.Belt, geom.NewRect(420, 200, 500, 280), 0.5)

	out := d.Detect(slots, []detect.Detection{noBelt},
		[]detect.Detection{wheel}, 5)

	assert.Empty(t, out)
	assert.Equal(t, 1, s.NoBeltCount)
	assert.Equal(t, 5, s.NoBeltFrame)

	s.LastFrame = 8

	out = d.Detect(slots, []detect.Detection{belt},
		[]detect.Detection{wheel}, 8)

	assert.Empty(t, out)
	assert.Zero(t, s.NoBeltCount)

	// debounce window has elapsed but the counter dropped below one
	s.LastFrame = 36

	out = d.Detect(slots, nil, nil, 36)

	assert.Empty(t, out)
	assert.False(t, s.Sent)
}

func TestSeatbeltFinalizedAfterDebounce(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 5)
	slots := []*track.Slot{s}

	wheel := wheelDet(geom.NewRect(400, 300, 460, 360), 0.6)
	noBelt := det(detect.NoBelt, geom.NewRect(420, 200, 500, 280), 0.5)

	out := d.Detect(slots, []detect.Detection{noBelt},
		[]detect.Detection{wheel}, 5)
	assert.Empty(t, out)

	// still inside the debounce window
	out = d.Detect(slots, nil, nil, 35)
	assert.Empty(t, out)

	out = d.Detect(slots, nil, nil, 36)

	require.Len(t, out, 1)
	assert.Equal(t, TypeSeatbelt, out[0].Type)
	assert.Equal(t, 5, out[0].TriggerFrame)
	assert.True(t, s.Sent)
}

func TestSentSlotFinalizedOnlyOnce(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 5)
	slots := []*track.Slot{s}

	wheel := wheelDet(geom.NewRect(400, 300, 460, 360), 0.6)
	noBelt := det(detect.NoBelt, geom.NewRect(420, 200, 500, 280), 0.5)

	d.Detect(slots, []detect.Detection{noBelt}, []detect.Detection{wheel}, 5)

	out := d.Detect(slots, nil, nil, 40)
	require.Len(t, out, 1)

	for fi := 41; fi < 50; fi++ {
		assert.Empty(t, d.Detect(slots, nil, nil, fi))
	}
}

func TestPhoneViolationCarriesOwnTriggerMoment(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 5)
	slots := []*track.Slot{s}

	wheel := wheelDet(geom.NewRect(400, 300, 460, 360), 0.6)
	noBelt := det(detect.NoBelt, geom.NewRect(420, 200, 500, 280), 0.5)
	belt := det(detect.Belt, geom.NewRect(420, 200, 500, 280), 0.5)
	phone := det(detect.Mobile, geom.NewRect(430, 300, 470, 340), 0.4)

	// transient no-belt reading latches the belt trigger, then cancels
	d.Detect(slots, []detect.Detection{noBelt}, []detect.Detection{wheel}, 5)

	s.LastFrame = 8
	d.Detect(slots, []detect.Detection{belt}, []detect.Detection{wheel}, 8)

	s.LastFrame = 10
	out := d.Detect(slots, []detect.Detection{phone},
		[]detect.Detection{wheel}, 10)
	assert.Empty(t, out)

	s.LastFrame = 14
	out = d.Detect(slots, []detect.Detection{phone},
		[]detect.Detection{wheel}, 14)

	// the phone violation points at the phone sighting, not at the
	// earlier belt latch
	require.Len(t, out, 1)
	assert.Equal(t, TypeMobilePhone, out[0].Type)
	assert.Equal(t, 14, out[0].TriggerFrame)
	assert.Equal(t, phone.Box, out[0].TriggerBox)
}

func TestWheelAssignmentPrefersRight(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 1)

	left := wheelDet(geom.NewRect(100, 300, 160, 360), 0.9)
	right := wheelDet(geom.NewRect(400, 300, 460, 360), 0.4)

	d.Detect([]*track.Slot{s}, nil, []detect.Detection{left, right}, 1)

	require.NotNil(t, s.Wheel)
	assert.Equal(t, float32(400), s.Wheel.Box.MinX)
}

func TestWheelOverlappingRightwardNeedsTiebreak(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 1)

	// the candidate overlaps the held wheel, shifted right but within a
	// wheel gap of its right edge, and is smaller; the held wheel stays
	held := wheelDet(geom.NewRect(400, 300, 460, 360), 0.8)
	cand := wheelDet(geom.NewRect(452, 305, 505, 355), 0.9)

	d.Detect([]*track.Slot{s}, nil, []detect.Detection{held, cand}, 1)

	require.NotNil(t, s.Wheel)
	assert.Equal(t, float32(400), s.Wheel.Box.MinX)
}

func TestWheelClearOfRightEdgeWinsOutright(t *testing.T) {

	d := newTestDetector(t)

	s := slot(7, geom.NewRect(0, 0, 800, 600), 1)

	// left edge more than the gap past the held wheel's right edge wins
	// regardless of score or size
	held := wheelDet(geom.NewRect(400, 300, 460, 360), 0.9)
	cand := wheelDet(geom.NewRect(511, 300, 550, 340), 0.2)

	d.Detect([]*track.Slot{s}, nil, []detect.Detection{held, cand}, 1)

	require.NotNil(t, s.Wheel)
	assert.Equal(t, float32(511), s.Wheel.Box.MinX)
}

func TestWheelClaimedByNearestVehicleFirst(t *testing.T) {

	d := newTestDetector(t)

	// far overlaps near; near has the greater bottom y so it picks first
	near := slot(1, geom.NewRect(0, 200, 800, 600), 1)
	far := slot(2, geom.NewRect(0, 0, 800, 500), 1)

	wheel := wheelDet(geom.NewRect(400, 300, 460, 360), 0.6)

	d.Detect([]*track.Slot{far, near}, nil, []detect.Detection{wheel}, 1)

	require.NotNil(t, near.Wheel)
	assert.Nil(t, far.Wheel)
}

func TestViolationIDsAreUnique(t *testing.T) {

	g := NewIDGenerator()

	assert.Equal(t, int64(1), g.GetNext())
	assert.Equal(t, int64(2), g.GetNext())
	assert.Equal(t, int64(3), g.GetNext())
}
