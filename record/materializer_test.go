package record

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/framebuf"
	"github.com/roadeye/ivms/geom"
	"github.com/roadeye/ivms/violation"
)

// syncPool runs submitted tasks inline so dispatch order is observable
type syncPool struct{}

func (syncPool) Submit(task func()) bool { task(); return true }

type writtenEvent struct {
	streamNo int
	dest     string
	indexes  []int
}

// fakeWriter records dispatches instead of touching the filesystem
type fakeWriter struct {
	jobs       []ViolationJob
	jobIndexes [][]int
	events     []writtenEvent
}

func (w *fakeWriter) WriteViolation(frames []framebuf.Frame, job ViolationJob) {
	w.jobs = append(w.jobs, job)
	w.jobIndexes = append(w.jobIndexes, closeAndIndex(frames))
}

func (w *fakeWriter) WriteEventRecording(frames []framebuf.Frame,
	streamNo int, destFolder string) {

	w.events = append(w.events, writtenEvent{
		streamNo: streamNo,
		dest:     destFolder,
		indexes:  closeAndIndex(frames),
	})
}

func closeAndIndex(frames []framebuf.Frame) []int {
	out := make([]int, len(frames))

	for i, f := range frames {
		out[i] = f.Index
		f.Img.Close()
	}

	return out
}

type updatedEvent struct {
	id    int
	path  string
	vtype string
}

type fakeReporter struct {
	updates []updatedEvent
}

func (r *fakeReporter) UpdateEvent(eventID int, recordingPath,
	violationType string) error {

	r.updates = append(r.updates, updatedEvent{
		id:    eventID,
		path:  recordingPath,
		vtype: violationType,
	})

	return nil
}

type fakePub struct {
	notices []EventNotice
}

func (p *fakePub) PublishEventVideo(notice EventNotice) error {
	p.notices = append(p.notices, notice)
	return nil
}

func testConfig(streams int) *config.Config {
	return &config.Config{
		StreamCount: streams,
		FPS:         30,
		Video: config.Video{
			Format:          "MP4V",
			DurationSec:     10,
			ViolationFolder: "violations",
			EventFolder:     "event_recordings",
			Width:           1280,
			Height:          720,
		},
	}
}

func fillBuffer(b *framebuf.Buffer, from, to int) {
	for i := from; i <= to; i++ {
		b.Append(framebuf.Frame{
			Index: i,
			Img:   gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1),
		})
	}
}

func newTestMaterializer(cfg *config.Config, buffers []*framebuf.Buffer,
	w *fakeWriter, pub Publisher) *Materializer {

	m := NewMaterializer(cfg, buffers, syncPool{}, w, pub, nil, zerolog.Nop())
	m.now = func() time.Time {
		return time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
	}

	return m
}

func TestViolationDispatchAtThreshold(t *testing.T) {

	cfg := testConfig(1)
	require.Equal(t, 135, cfg.RecordingThresh())

	buf := framebuf.NewBuffer(400)
	defer buf.Close()
	fillBuffer(buf, 0, 300)

	w := &fakeWriter{}
	m := newTestMaterializer(cfg, []*framebuf.Buffer{buf}, w, nil)

	v := violation.Violation{
		ID:           1,
		StreamNo:     0,
		Type:         violation.TypeMobilePhone,
		TriggerFrame: 140,
		TriggerTime:  "20260830.103000.000",
		TriggerBox:   geom.NewRect(10, 10, 50, 50),
	}

	m.Admit(v, "DXB,12345", nil, 141)

	for fi := 142; fi < 276; fi++ {
		m.Tick(0, fi)
		assert.Empty(t, w.jobs, "dispatched early at frame %d", fi)
	}

	// elapsed reaches the threshold here
	m.Tick(0, 276)

	require.Len(t, w.jobs, 1)
	assert.Equal(t, int64(1), w.jobs[0].ID)
	assert.Equal(t, "DXB,12345", w.jobs[0].Plate)

	// full window centered on the trigger frame
	idx := w.jobIndexes[0]
	require.Len(t, idx, 271)
	assert.Equal(t, 5, idx[0])
	assert.Equal(t, 275, idx[len(idx)-1])

	// a pending item is dispatched at most once
	for fi := 277; fi < 300; fi++ {
		m.Tick(0, fi)
	}

	assert.Len(t, w.jobs, 1)
}

func TestEventRequestPublishesNotice(t *testing.T) {

	cfg := testConfig(2)

	buffers := []*framebuf.Buffer{
		framebuf.NewBuffer(400), framebuf.NewBuffer(400),
	}

	defer buffers[0].Close()
	defer buffers[1].Close()

	w := &fakeWriter{}
	pub := &fakePub{}
	m := newTestMaterializer(cfg, buffers, w, pub)

	m.AdmitEventRequest(EventRequest{
		EventID:       42,
		ViolationType: "mobile",
		StreamID:      1,
	})

	require.Len(t, pub.notices, 1)
	assert.Equal(t, 42, pub.notices[0].EventID)
	assert.Equal(t, "event_recordings/20260830/42/1.mp4",
		pub.notices[0].VideoPath)
	assert.Equal(t, "None", pub.notices[0].GPS)
}

func TestEventRecordsAllStreams(t *testing.T) {

	cfg := testConfig(2)

	buffers := []*framebuf.Buffer{
		framebuf.NewBuffer(400), framebuf.NewBuffer(400),
	}

	defer buffers[0].Close()
	defer buffers[1].Close()

	// oldest retained frame 900 is newer than the ideal window start 865,
	// so the recording degrades to the oldest available frames
	fillBuffer(buffers[0], 900, 1140)
	fillBuffer(buffers[1], 900, 1140)

	w := &fakeWriter{}
	m := newTestMaterializer(cfg, buffers, w, &fakePub{})

	m.AdmitEventRequest(EventRequest{EventID: 42, ViolationType: "mobile",
		StreamID: 1})

	for fi := 1000; fi < 1135; fi++ {
		m.Tick(0, fi)
		assert.Empty(t, w.events, "dispatched early at frame %d", fi)
	}

	m.Tick(0, 1135)

	require.Len(t, w.events, 2)
	assert.Equal(t, 0, w.events[0].streamNo)
	assert.Equal(t, 1, w.events[1].streamNo)
	assert.Equal(t, "event_recordings/20260830/42", w.events[0].dest)

	assert.Equal(t, 900, w.events[0].indexes[0])

	// ticking further never re-dispatches
	for fi := 1136; fi < 1150; fi++ {
		m.Tick(0, fi)
	}

	assert.Len(t, w.events, 2)
}

func TestEventDispatchMarksEventRecorded(t *testing.T) {

	cfg := testConfig(2)

	buffers := []*framebuf.Buffer{
		framebuf.NewBuffer(400), framebuf.NewBuffer(400),
	}

	defer buffers[0].Close()
	defer buffers[1].Close()

	fillBuffer(buffers[0], 900, 1140)
	fillBuffer(buffers[1], 900, 1140)

	w := &fakeWriter{}
	rep := &fakeReporter{}
	m := newTestMaterializer(cfg, buffers, w, &fakePub{})
	m.reporter = rep

	m.AdmitEventRequest(EventRequest{EventID: 42, ViolationType: "mobile",
		StreamID: 1})

	for fi := 1000; fi <= 1135; fi++ {
		m.Tick(0, fi)
	}

	// the backend update follows the per-stream recordings, once per event
	require.Len(t, w.events, 2)
	require.Len(t, rep.updates, 1)
	assert.Equal(t, 42, rep.updates[0].id)
	assert.Equal(t, "event_recordings/20260830/42", rep.updates[0].path)
	assert.Equal(t, "mobile", rep.updates[0].vtype)

	for fi := 1136; fi < 1150; fi++ {
		m.Tick(0, fi)
	}

	assert.Len(t, rep.updates, 1)
}

func TestEventsTickOnStreamZeroOnly(t *testing.T) {

	cfg := testConfig(2)

	buffers := []*framebuf.Buffer{
		framebuf.NewBuffer(10), framebuf.NewBuffer(10),
	}

	defer buffers[0].Close()
	defer buffers[1].Close()

	w := &fakeWriter{}
	m := newTestMaterializer(cfg, buffers, w, &fakePub{})

	m.AdmitEventRequest(EventRequest{EventID: 7, StreamID: 0})

	for fi := 0; fi < 500; fi++ {
		m.Tick(1, fi)
	}

	assert.Empty(t, w.events)
}
