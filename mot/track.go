package mot

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TrackState is the lifecycle state of a track
type TrackState int

const (
	// StateNew is a freshly created, not yet confirmed track
	StateNew TrackState = iota
	// StateTracked is a track matched in the current frame
	StateTracked
	// StateLost is a track with no match in recent frames
	StateLost
	// StateRemoved is a track aged out of the lost list
	StateRemoved
)

// Track is one tracked object. It owns a Kalman state that is predicted
// every frame and corrected whenever a detection is associated to it.
type Track struct {
	kf         *KalmanFilter
	mean       StateMean
	cov        StateCov
	rect       Rect
	state      TrackState
	active     bool
	score      float32
	id         int
	frame      int
	startFrame int
	length     int
	detID      int64
	label      int
}

// newTrack wraps a detection in an unconfirmed track
func newTrack(rect Rect, score float32, detID int64, label int) *Track {
	return &Track{
		kf:    NewKalmanFilter(1.0/20, 1.0/160),
		mean:  make(StateMean, 8),
		cov:   StateCov{mat.NewDense(8, 8, nil)},
		rect:  rect,
		state: StateNew,
		score: score,
		detID: detID,
		label: label,
	}
}

// Rect returns the current bounding box estimate
func (t *Track) Rect() *Rect {
	return &t.rect
}

// State returns the lifecycle state
func (t *Track) State() TrackState {
	return t.state
}

// Active reports whether the track has been confirmed
func (t *Track) Active() bool {
	return t.active
}

// Score returns the score of the last associated detection
func (t *Track) Score() float32 {
	return t.score
}

// TrackID returns the stable id assigned at activation
func (t *Track) TrackID() int {
	return t.id
}

// FrameID returns the frame the track was last updated on
func (t *Track) FrameID() int {
	return t.frame
}

// DetectionID returns the caller id of the last associated detection
func (t *Track) DetectionID() int64 {
	return t.detID
}

// Label returns the class label of the tracked object
func (t *Track) Label() int {
	return t.label
}

// StartFrame returns the frame the track was activated on
func (t *Track) StartFrame() int {
	return t.startFrame
}

// activate confirms the track and seeds its motion state. Tracks born on
// the very first frame are confirmed immediately.
func (t *Track) activate(frame, id int) {

	t.kf.Initiate(t.mean, &t.cov, Measurement(t.rect.Xyah()))
	t.syncRect()

	t.state = StateTracked

	if frame == 1 {
		t.active = true
	}

	t.id = id
	t.frame = frame
	t.startFrame = frame
	t.length = 0
}

// reActivate revives a lost track with a new detection, keeping its id
// unless a replacement is given.
func (t *Track) reActivate(det *Track, frame, newID int) error {

	err := t.kf.Update(t.mean, &t.cov, Measurement(det.rect.Xyah()))

	if err != nil {
		return fmt.Errorf("reactivate track %d: %w", t.id, err)
	}

	t.syncRect()

	t.state = StateTracked
	t.active = true
	t.score = det.score
	t.detID = det.detID

	if newID >= 0 {
		t.id = newID
	}

	t.frame = frame
	t.length = 0

	return nil
}

// predict advances the motion state one frame. Unmatched tracks get their
// height velocity zeroed first, as the reference implementation does.
func (t *Track) predict() {

	if t.state != StateTracked {
		t.mean[7] = 0
	}

	t.kf.Predict(t.mean, &t.cov)
}

// update corrects the track with an associated detection
func (t *Track) update(det *Track, frame int) error {

	err := t.kf.Update(t.mean, &t.cov, Measurement(det.rect.Xyah()))

	if err != nil {
		return fmt.Errorf("update track %d: %w", t.id, err)
	}

	t.syncRect()

	t.state = StateTracked
	t.active = true
	t.score = det.score
	t.detID = det.detID
	t.frame = frame
	t.length++

	return nil
}

func (t *Track) markLost() {
	t.state = StateLost
}

func (t *Track) markRemoved() {
	t.state = StateRemoved
}

// syncRect rebuilds the bounding box from the state mean
func (t *Track) syncRect() {
	t.rect.Tlwh[2] = t.mean[2] * t.mean[3]
	t.rect.Tlwh[3] = t.mean[3]
	t.rect.Tlwh[0] = t.mean[0] - t.rect.Tlwh[2]/2
	t.rect.Tlwh[1] = t.mean[1] - t.rect.Tlwh[3]/2
}
