// Package record turns confirmed violations and external event requests
// into durable video, image and metadata artifacts.
package record

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/framebuf"
	"github.com/roadeye/ivms/violation"
)

// TaskPool runs a task asynchronously on a bounded worker pool. Submit
// never blocks and reports whether the task was accepted.
type TaskPool interface {
	Submit(task func()) bool
}

// EventNotice is published as soon as an external event request is
// admitted, naming the artifact path the recording will eventually occupy
type EventNotice struct {
	EventID   int    `json:"event_id"`
	VideoPath string `json:"event_videos_path"`
	GPS       string `json:"gps_coordinates"`
}

// Publisher pushes event notices to the message bus
type Publisher interface {
	PublishEventVideo(notice EventNotice) error
}

// EventReporter marks an event recorded on the backend once its
// recordings have been dispatched
type EventReporter interface {
	UpdateEvent(eventID int, recordingPath, violationType string) error
}

// EventRequest is an externally signalled recording request. StreamID is
// zero based.
type EventRequest struct {
	EventID       int
	ViolationType string
	StreamID      int
}

// pendingViolation is a violation waiting for its trailing recording
// window to fill
type pendingViolation struct {
	job     ViolationJob
	elapsed int
}

// pendingEvent is an external request waiting for its window. Events
// record every stream, not only the one named in the request.
type pendingEvent struct {
	id            int
	violationType string
	fiSet         bool
	frameIndex    int
	elapsed       int
}

// Materializer holds pending recordings per stream and dispatches each
// one to the writer exactly once, when enough trailing frames have
// accumulated after the trigger.
type Materializer struct {
	cfg    *config.Config
	thresh int

	buffers  []*framebuf.Buffer
	pool     TaskPool
	writer   Writer
	pub      Publisher
	reporter EventReporter

	// violations is only touched by its stream's own goroutine; events
	// arrive from the bus goroutine and are ticked from stream 0, so they
	// need the lock
	violations [][]pendingViolation

	eventsMu sync.Mutex
	events   []pendingEvent

	now func() time.Time
	log zerolog.Logger
}

// NewMaterializer creates the materializer over the per-stream frame
// buffers. pub may be nil when no bus is connected, reporter may be nil
// when no backend is configured.
func NewMaterializer(cfg *config.Config, buffers []*framebuf.Buffer,
	pool TaskPool, writer Writer, pub Publisher, reporter EventReporter,
	log zerolog.Logger) *Materializer {

	return &Materializer{
		cfg:        cfg,
		thresh:     cfg.RecordingThresh(),
		buffers:    buffers,
		pool:       pool,
		writer:     writer,
		pub:        pub,
		reporter:   reporter,
		violations: make([][]pendingViolation, cfg.StreamCount),
		now:        time.Now,
		log:        log,
	}
}

// Admit queues a freshly finalized violation for recording. lprFrame and
// the plate string come from the violating vehicle's slot; lprFrame is
// copied, the caller keeps ownership of its original.
func (m *Materializer) Admit(v violation.Violation, plate string,
	lprFrame *gocv.Mat, frameIndex int) {

	var lpr *gocv.Mat

	if lprFrame != nil {
		c := lprFrame.Clone()
		lpr = &c
	}

	p := pendingViolation{
		job: ViolationJob{
			ID:           v.ID,
			StreamNo:     v.StreamNo,
			Type:         v.Type,
			Box:          v.TriggerBox,
			TriggerFrame: v.TriggerFrame,
			Timestamp:    v.TriggerTime,
			Plate:        plate,
			LPRFrame:     lpr,
		},
		// frames seen since the trigger already count toward the window
		elapsed: frameIndex - v.TriggerFrame - 1,
	}

	m.violations[v.StreamNo] = append(m.violations[v.StreamNo], p)

	m.log.Info().Int64("violation", v.ID).Str("type", v.Type.String()).
		Int("frame", v.TriggerFrame).Int("elapsed", p.elapsed).
		Msg("violation admitted for recording")
}

// AdmitEventRequest queues an external event request and immediately
// publishes the path its recording will occupy, so consumers can register
// interest before the artifacts exist
func (m *Materializer) AdmitEventRequest(req EventRequest) {

	m.eventsMu.Lock()
	m.events = append(m.events, pendingEvent{
		id:            req.EventID,
		violationType: req.ViolationType,
	})
	m.eventsMu.Unlock()

	day := m.now().Format("20060102")
	path := fmt.Sprintf("%s/%s/%d/%d%s", m.cfg.Video.EventFolder, day,
		req.EventID, req.StreamID, m.cfg.Video.Ext())

	m.log.Info().Int("event", req.EventID).Int("stream", req.StreamID).
		Str("path", path).Msg("event request admitted")

	if m.pub == nil {
		return
	}

	err := m.pub.PublishEventVideo(EventNotice{
		EventID:   req.EventID,
		VideoPath: path,
		GPS:       "None",
	})

	if err != nil {
		m.log.Error().Err(err).Int("event", req.EventID).
			Msg("publishing event notice failed")
	}
}

// Tick advances every pending item for the stream by one frame and
// dispatches the ones whose window has filled. Event requests span all
// streams and are ticked on stream 0 only so they advance once per frame.
func (m *Materializer) Tick(streamNo, frameIndex int) {

	m.tickViolations(streamNo, frameIndex)

	if streamNo == 0 {
		m.tickEvents(frameIndex)
	}
}

func (m *Materializer) tickViolations(streamNo, frameIndex int) {

	kept := m.violations[streamNo][:0]

	for _, p := range m.violations[streamNo] {

		p.elapsed++

		if p.elapsed < m.thresh {
			kept = append(kept, p)
			continue
		}

		frames := m.buffers[streamNo].Window(p.job.TriggerFrame, 2*m.thresh)
		job := p.job

		m.log.Info().Int64("violation", job.ID).Int("frame", frameIndex).
			Int("frames", len(frames)).Msg("dispatching materialization")

		accepted := m.pool.Submit(func() {
			m.writer.WriteViolation(frames, job)
		})

		if !accepted {
			closeFrames(frames)
			if job.LPRFrame != nil {
				job.LPRFrame.Close()
			}
			m.log.Error().Int64("violation", job.ID).
				Msg("materialization rejected, recording lost")
		}
	}

	m.violations[streamNo] = kept
}

func (m *Materializer) tickEvents(frameIndex int) {

	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	kept := m.events[:0]

	for _, e := range m.events {

		if !e.fiSet {
			e.fiSet = true
			e.frameIndex = frameIndex
		}

		e.elapsed++

		if e.elapsed <= m.thresh {
			kept = append(kept, e)
			continue
		}

		day := m.now().Format("20060102")
		dest := filepath.Join(m.cfg.Video.EventFolder, day,
			fmt.Sprintf("%d", e.id))

		m.log.Info().Int("event", e.id).Int("frame", frameIndex).
			Str("folder", dest).Msg("dispatching event recording")

		for streamNo := 0; streamNo < m.cfg.StreamCount; streamNo++ {

			frames := m.buffers[streamNo].Window(e.frameIndex, 2*m.thresh)
			sn := streamNo

			accepted := m.pool.Submit(func() {
				m.writer.WriteEventRecording(frames, sn, dest)
			})

			if !accepted {
				closeFrames(frames)
				m.log.Error().Int("event", e.id).Int("stream", sn).
					Msg("event recording rejected, stream lost")
			}
		}

		if m.reporter != nil {
			id, vtype, path := e.id, e.violationType, dest

			ok := m.pool.Submit(func() {
				if err := m.reporter.UpdateEvent(id, path, vtype); err != nil {
					m.log.Error().Err(err).Int("event", id).
						Msg("updating event on backend failed")
				}
			})

			if !ok {
				m.log.Warn().Int("event", id).
					Msg("event update skipped, pool backlog full")
			}
		}
	}

	m.events = kept
}
