package mot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func obj(x, y float32, score float32, id int64) Object {
	return Object{
		Rect:  NewRect(x, y, 80, 60),
		Score: score,
		ID:    id,
	}
}

// byTrackID indexes tracker output by track id
func byTrackID(tracks []*Track) map[int]*Track {

	out := make(map[int]*Track, len(tracks))

	for _, trk := range tracks {
		out[trk.TrackID()] = trk
	}

	return out
}

func TestTrackerAssignsStableIDs(t *testing.T) {

	bt := NewTracker(30, 30, 0.5, 0.6, 0.8)

	// first frame tracks are confirmed immediately
	tracks, err := bt.Update([]Object{
		obj(100, 100, 0.90, 1),
		obj(400, 100, 0.85, 2),
	})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	got := byTrackID(tracks)
	require.Equal(t, int64(1), got[1].DetectionID())
	require.Equal(t, int64(2), got[2].DetectionID())

	// both move slightly and keep their ids
	tracks, err = bt.Update([]Object{
		obj(105, 100, 0.91, 11),
		obj(405, 100, 0.86, 12),
	})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	got = byTrackID(tracks)
	require.Equal(t, int64(11), got[1].DetectionID())
	require.Equal(t, int64(12), got[2].DetectionID())
}

func TestTrackerConfirmsNewTrackOnSecondSighting(t *testing.T) {

	bt := NewTracker(30, 30, 0.5, 0.6, 0.8)

	_, err := bt.Update([]Object{obj(100, 100, 0.9, 1)})
	require.NoError(t, err)

	// a newcomer past the first frame starts unconfirmed
	tracks, err := bt.Update([]Object{
		obj(103, 100, 0.9, 2),
		obj(700, 300, 0.9, 3),
	})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	require.Equal(t, 1, tracks[0].TrackID())

	// second sighting confirms it
	tracks, err = bt.Update([]Object{
		obj(106, 100, 0.9, 4),
		obj(702, 300, 0.9, 5),
	})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	got := byTrackID(tracks)
	require.Contains(t, got, 2)
	require.Equal(t, int64(5), got[2].DetectionID())
}

func TestTrackerLowScoreSecondRound(t *testing.T) {

	bt := NewTracker(30, 30, 0.5, 0.6, 0.8)

	_, err := bt.Update([]Object{
		obj(100, 100, 0.9, 1),
		obj(400, 100, 0.9, 2),
	})
	require.NoError(t, err)

	// the first vehicle drops below the high score split but still
	// overlaps its track, so the second round keeps it alive
	tracks, err := bt.Update([]Object{
		obj(104, 100, 0.30, 3),
		obj(404, 100, 0.90, 4),
	})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	got := byTrackID(tracks)
	require.Equal(t, int64(3), got[1].DetectionID())
	require.InDelta(t, 0.30, got[1].Score(), 1e-6)
}

func TestTrackerRecoversLostTrack(t *testing.T) {

	bt := NewTracker(30, 30, 0.5, 0.6, 0.8)

	_, err := bt.Update([]Object{
		obj(100, 100, 0.9, 1),
		obj(400, 100, 0.9, 2),
	})
	require.NoError(t, err)

	// second vehicle occluded for one frame
	tracks, err := bt.Update([]Object{obj(103, 100, 0.9, 3)})
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	// it reappears near where it was and gets its old id back
	tracks, err = bt.Update([]Object{
		obj(106, 100, 0.9, 4),
		obj(402, 100, 0.9, 5),
	})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	got := byTrackID(tracks)
	require.Contains(t, got, 2)
	require.Equal(t, int64(5), got[2].DetectionID())
}

func TestTrackerResetClearsState(t *testing.T) {

	bt := NewTracker(30, 30, 0.5, 0.6, 0.8)

	_, err := bt.Update([]Object{obj(100, 100, 0.9, 1)})
	require.NoError(t, err)

	bt.Reset()

	// ids restart after a reset
	tracks, err := bt.Update([]Object{obj(500, 200, 0.9, 2)})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	require.Equal(t, 1, tracks[0].TrackID())
}
