// Package mot assigns stable track ids to per-frame detections using the
// ByteTrack association scheme over a constant velocity Kalman model. It
// backfills vehicle ids on streams whose upstream detector does not track.
package mot

import (
	"fmt"
)

// Object is one detection handed to the tracker for a frame
type Object struct {
	// Rect is the detection bounding box
	Rect Rect
	// Label is the detection class
	Label int
	// Score is the detection confidence
	Score float32
	// ID is a caller supplied id used to match tracker output back to
	// the input detections
	ID int64
}

// Tracker associates detections across frames. ByteTrack runs two
// association rounds per frame: high score detections first, then the low
// score leftovers against the still unmatched tracks.
type Tracker struct {
	// trackThresh splits detections into the high and low score rounds
	trackThresh float32
	// highThresh is the minimum score to start a new track
	highThresh float32
	// matchThresh is the IoU distance cutoff for the first round
	matchThresh float32
	// maxTimeLost is how many frames a lost track is kept around
	maxTimeLost int

	frame  int
	nextID int

	tracked []*Track
	lost    []*Track
	removed []*Track
}

// NewTracker returns a tracker tuned for the given frame rate. trackBuffer
// is the lost track retention in frames at 30fps.
func NewTracker(frameRate, trackBuffer int, trackThresh, highThresh,
	matchThresh float32) *Tracker {

	return &Tracker{
		trackThresh: trackThresh,
		highThresh:  highThresh,
		matchThresh: matchThresh,
		maxTimeLost: int(float32(frameRate) / 30.0 * float32(trackBuffer)),
	}
}

// Reset drops all track state
func (t *Tracker) Reset() {
	t.frame = 0
	t.nextID = 0
	t.tracked = nil
	t.lost = nil
	t.removed = nil
}

// Update advances the tracker one frame and returns the confirmed tracks
func (t *Tracker) Update(objects []Object) ([]*Track, error) {

	t.frame++

	// split the detections by score
	var highDets, lowDets []*Track

	for _, obj := range objects {

		det := newTrack(obj.Rect, obj.Score, obj.ID, obj.Label)

		if obj.Score >= t.trackThresh {
			highDets = append(highDets, det)
		} else {
			lowDets = append(lowDets, det)
		}
	}

	var confirmed, unconfirmed []*Track

	for _, trk := range t.tracked {
		if trk.Active() {
			confirmed = append(confirmed, trk)
		} else {
			unconfirmed = append(unconfirmed, trk)
		}
	}

	pool := joinTracks(confirmed, t.lost)

	for _, trk := range pool {
		trk.predict()
	}

	// first association round, confirmed and lost tracks against the
	// high score detections
	var nowTracked, remainTracked, remainDets, refound []*Track

	matches, unmatchedTracks, unmatchedDets, err := t.assign(
		iouDistance(pool, highDets), len(pool), len(highDets), t.matchThresh)

	if err != nil {
		return nil, fmt.Errorf("first association round: %w", err)
	}

	for _, m := range matches {

		trk := pool[m[0]]
		det := highDets[m[1]]

		if trk.State() == StateTracked {
			if err := trk.update(det, t.frame); err != nil {
				return nil, err
			}
			nowTracked = append(nowTracked, trk)
		} else {
			if err := trk.reActivate(det, t.frame, -1); err != nil {
				return nil, err
			}
			refound = append(refound, trk)
		}
	}

	for _, idx := range unmatchedDets {
		remainDets = append(remainDets, highDets[idx])
	}

	for _, idx := range unmatchedTracks {
		if pool[idx].State() == StateTracked {
			remainTracked = append(remainTracked, pool[idx])
		}
	}

	// second round, leftover tracks against the low score detections
	var nowLost []*Track

	matches, unmatchedTracks, _, err = t.assign(
		iouDistance(remainTracked, lowDets), len(remainTracked), len(lowDets), 0.5)

	if err != nil {
		return nil, fmt.Errorf("second association round: %w", err)
	}

	for _, m := range matches {

		trk := remainTracked[m[0]]
		det := lowDets[m[1]]

		if trk.State() == StateTracked {
			if err := trk.update(det, t.frame); err != nil {
				return nil, err
			}
			nowTracked = append(nowTracked, trk)
		} else {
			if err := trk.reActivate(det, t.frame, -1); err != nil {
				return nil, err
			}
			refound = append(refound, trk)
		}
	}

	for _, idx := range unmatchedTracks {
		trk := remainTracked[idx]
		if trk.State() != StateLost {
			trk.markLost()
			nowLost = append(nowLost, trk)
		}
	}

	// match the leftover high score detections against last frame's
	// unconfirmed tracks, then start new tracks from the rest
	var nowRemoved []*Track

	matches, unmatchedTracks, unmatchedDets, err = t.assign(
		iouDistance(unconfirmed, remainDets), len(unconfirmed), len(remainDets), 0.7)

	if err != nil {
		return nil, fmt.Errorf("unconfirmed association round: %w", err)
	}

	for _, m := range matches {
		if err := unconfirmed[m[0]].update(remainDets[m[1]], t.frame); err != nil {
			return nil, err
		}
		nowTracked = append(nowTracked, unconfirmed[m[0]])
	}

	for _, idx := range unmatchedTracks {
		trk := unconfirmed[idx]
		trk.markRemoved()
		nowRemoved = append(nowRemoved, trk)
	}

	for _, idx := range unmatchedDets {

		det := remainDets[idx]

		if det.Score() < t.highThresh {
			continue
		}

		t.nextID++
		det.activate(t.frame, t.nextID)
		nowTracked = append(nowTracked, det)
	}

	// age out lost tracks
	for _, trk := range t.lost {
		if t.frame-trk.FrameID() > t.maxTimeLost {
			trk.markRemoved()
			nowRemoved = append(nowRemoved, trk)
		}
	}

	t.tracked = joinTracks(nowTracked, refound)
	t.lost = subTracks(joinTracks(subTracks(t.lost, t.tracked), nowLost), t.removed)
	t.removed = joinTracks(t.removed, nowRemoved)

	t.tracked, t.lost = dedupTracks(t.tracked, t.lost)

	var out []*Track

	for _, trk := range t.tracked {
		if trk.Active() {
			out = append(out, trk)
		}
	}

	return out, nil
}

// joinTracks merges two track lists, keeping the first occurrence of each id
func joinTracks(a, b []*Track) []*Track {

	exists := make(map[int]bool)
	var res []*Track

	for _, trk := range a {
		exists[trk.TrackID()] = true
		res = append(res, trk)
	}

	for _, trk := range b {
		if !exists[trk.TrackID()] {
			exists[trk.TrackID()] = true
			res = append(res, trk)
		}
	}

	return res
}

// subTracks removes from a every track whose id appears in b
func subTracks(a, b []*Track) []*Track {

	byID := make(map[int]*Track)

	for _, trk := range a {
		byID[trk.TrackID()] = trk
	}

	for _, trk := range b {
		delete(byID, trk.TrackID())
	}

	var res []*Track

	for _, trk := range byID {
		res = append(res, trk)
	}

	return res
}

// dedupTracks drops whichever of two heavily overlapping tracks has the
// shorter history.
func dedupTracks(a, b []*Track) (aRes, bRes []*Track) {

	dists := iouDistance(a, b)

	aDrop := make([]bool, len(a))
	bDrop := make([]bool, len(b))

	for i := range dists {
		for j := range dists[i] {

			if dists[i][j] >= 0.15 {
				continue
			}

			ageA := a[i].FrameID() - a[i].StartFrame()
			ageB := b[j].FrameID() - b[j].StartFrame()

			if ageA > ageB {
				bDrop[j] = true
			} else {
				aDrop[i] = true
			}
		}
	}

	for i, drop := range aDrop {
		if !drop {
			aRes = append(aRes, a[i])
		}
	}

	for j, drop := range bDrop {
		if !drop {
			bRes = append(bRes, b[j])
		}
	}

	return aRes, bRes
}

// assign matches rows to columns of a cost matrix, returning the matched
// index pairs and the unmatched rows and columns.
func (t *Tracker) assign(cost [][]float32, rows, cols int,
	thresh float32) (matches [][2]int, unmatchedRows, unmatchedCols []int, err error) {

	if len(cost) == 0 {
		for i := 0; i < rows; i++ {
			unmatchedRows = append(unmatchedRows, i)
		}
		for j := 0; j < cols; j++ {
			unmatchedCols = append(unmatchedCols, j)
		}
		return
	}

	rowSol, colSol, err := t.solve(cost, thresh)

	if err != nil {
		return nil, nil, nil, err
	}

	for i, sol := range rowSol {
		if sol >= 0 {
			matches = append(matches, [2]int{i, sol})
		} else {
			unmatchedRows = append(unmatchedRows, i)
		}
	}

	for j, sol := range colSol {
		if sol < 0 {
			unmatchedCols = append(unmatchedCols, j)
		}
	}

	return
}

// iouDistance builds the 1-IoU cost matrix between two track lists
func iouDistance(a, b []*Track) [][]float32 {

	if len(a)*len(b) == 0 {
		return nil
	}

	cost := make([][]float32, len(a))

	for i := range a {
		cost[i] = make([]float32, len(b))
		for j := range b {
			cost[i][j] = 1 - a[i].Rect().IoU(*b[j].Rect())
		}
	}

	return cost
}

// solve runs the assignment solver on a rectangular cost matrix by
// embedding it in a square one padded at the cost limit.
func (t *Tracker) solve(cost [][]float32, costLimit float32) (rowSol, colSol []int, err error) {

	nRows := len(cost)
	nCols := len(cost[0])
	n := nRows + nCols

	padded := make([][]float64, n)

	for i := range padded {
		padded[i] = make([]float64, n)
		for j := range padded[i] {
			padded[i][j] = float64(costLimit) / 2.0
		}
	}

	for i := nRows; i < n; i++ {
		for j := nCols; j < n; j++ {
			padded[i][j] = 0
		}
	}

	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			padded[i][j] = float64(cost[i][j])
		}
	}

	x := make([]int, n)
	y := make([]int, n)

	if err := solveAssignment(n, padded, x, y); err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		if x[i] >= nCols {
			x[i] = -1
		}
		if y[i] >= nRows {
			y[i] = -1
		}
	}

	rowSol = make([]int, nRows)
	colSol = make([]int, nCols)

	copy(rowSol, x[:nRows])
	copy(colSol, y[:nCols])

	return rowSol, colSol, nil
}
