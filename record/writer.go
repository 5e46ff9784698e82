package record

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/framebuf"
	"github.com/roadeye/ivms/geom"
	"github.com/roadeye/ivms/violation"
)

// boxColor outlines the violation bbox on the frozen trigger frame
var boxColor = color.RGBA{R: 220, G: 50, B: 50}

// ViolationJob carries everything a materialization task needs. The job
// owns the frames and the LPR frame; the writer frees them.
type ViolationJob struct {
	ID           int64
	StreamNo     int
	Type         violation.Type
	Box          geom.Rect
	TriggerFrame int
	// Timestamp is the compact violation timestamp
	Timestamp string
	// Plate is the confirmed read, empty when none
	Plate string
	// LPRFrame is the full frame the plate was read on, may be nil
	LPRFrame *gocv.Mat
}

// Writer materializes recordings to durable storage
type Writer interface {
	WriteViolation(frames []framebuf.Frame, job ViolationJob)
	WriteEventRecording(frames []framebuf.Frame, streamNo int,
		destFolder string)
}

// ArtifactWriter writes violation and event artifacts to the local
// filesystem. Failures are logged and leave partial artifacts behind;
// nothing is retried.
type ArtifactWriter struct {
	cfg    *config.Config
	banner *Banner
	log    zerolog.Logger
}

func NewArtifactWriter(cfg *config.Config, log zerolog.Logger) (*ArtifactWriter, error) {

	banner, err := NewBanner(cfg.Label, cfg.Video.Width)

	if err != nil {
		return nil, err
	}

	return &ArtifactWriter{
		cfg:    cfg,
		banner: banner,
		log:    log,
	}, nil
}

// WriteViolation writes the violation's video, overview image, optional
// LPR frame and metadata document under
// <violation folder>/<YYYYMMDD>/<timestamp>/.
func (w *ArtifactWriter) WriteViolation(frames []framebuf.Frame,
	job ViolationJob) {

	defer closeFrames(frames)

	defer func() {
		if job.LPRFrame != nil {
			job.LPRFrame.Close()
		}

		if r := recover(); r != nil {
			w.log.Error().Int64("violation", job.ID).
				Interface("panic", r).Msg("violation materialization panic")
		}
	}()

	log := w.log.With().Int64("violation", job.ID).
		Int("stream", job.StreamNo).Logger()

	dest := filepath.Join(w.cfg.Video.ViolationFolder,
		job.Timestamp[0:8], job.Timestamp)

	if err := os.MkdirAll(dest, 0o755); err != nil {
		log.Error().Err(err).Msg("creating incident folder failed")
		return
	}

	base := fmt.Sprintf("%s-%s%08d", w.cfg.Label.DeviceID, job.Timestamp,
		job.ID)

	lprName := ""

	if job.LPRFrame != nil {
		lprName = base + "-2.png"

		if !gocv.IMWrite(filepath.Join(dest, lprName), *job.LPRFrame) {
			log.Error().Str("file", lprName).Msg("writing lpr frame failed")
			lprName = ""
		}
	}

	rawName := base + "-raw" + w.cfg.Video.Ext()
	overview, err := w.writeVideo(frames, job, filepath.Join(dest, rawName))

	if err != nil {
		log.Error().Err(err).Msg("writing violation video failed")
		return
	}

	defer overview.Close()

	w.banner.Draw(&overview, job.Timestamp, job.Plate, job.Type)

	overviewName := base + "-1.png"

	if !gocv.IMWrite(filepath.Join(dest, overviewName), overview) {
		log.Error().Str("file", overviewName).
			Msg("writing overview image failed")
	}

	videoName := base + ".mp4"

	if err := w.transcode(filepath.Join(dest, rawName),
		filepath.Join(dest, videoName)); err != nil {
		log.Error().Err(err).Msg("transcoding failed, raw video kept")
		videoName = rawName
	} else if err := os.Remove(filepath.Join(dest, rawName)); err != nil {
		log.Warn().Err(err).Msg("removing raw video failed")
	}

	inc := newIncident(w.cfg.Label, job.Timestamp, job.ID, videoName,
		overviewName, lprName, job.Type)

	if err := inc.write(filepath.Join(dest, base+".xml")); err != nil {
		log.Error().Err(err).Msg("writing incident metadata failed")
		return
	}

	log.Info().Str("folder", dest).Msg("violation artifacts written")
}

// writeVideo writes the raw recording. The trigger frame gets the
// violation box drawn on it and is repeated fps times to freeze the
// violation instant; a copy of it is returned for the overview image.
func (w *ArtifactWriter) writeVideo(frames []framebuf.Frame,
	job ViolationJob, path string) (gocv.Mat, error) {

	width := w.cfg.Video.Width
	height := w.cfg.Video.Height

	vw, err := gocv.VideoWriterFile(path, w.cfg.Video.Format,
		float64(w.cfg.FPS), width, height, true)

	if err != nil {
		return gocv.Mat{}, fmt.Errorf("opening video writer: %w", err)
	}

	defer vw.Close()

	var overview gocv.Mat
	found := false

	for _, frame := range frames {

		resized := gocv.NewMat()
		gocv.Resize(frame.Img, &resized, image.Pt(width, height), 0, 0,
			gocv.InterpolationLinear)

		if frame.Index == job.TriggerFrame {

			// bbox coordinates are in source resolution
			sx := float32(width) / float32(frame.Img.Cols())
			sy := float32(height) / float32(frame.Img.Rows())

			rect := image.Rect(int(job.Box.MinX*sx), int(job.Box.MinY*sy),
				int(job.Box.MaxX*sx), int(job.Box.MaxY*sy))
			gocv.Rectangle(&resized, rect, boxColor, 3)

			overview = resized.Clone()
			found = true

			for i := 0; i < w.cfg.FPS; i++ {
				if err := vw.Write(resized); err != nil {
					resized.Close()
					overview.Close()
					return gocv.Mat{}, fmt.Errorf("writing frame: %w", err)
				}
			}
		} else if err := vw.Write(resized); err != nil {
			resized.Close()
			return gocv.Mat{}, fmt.Errorf("writing frame: %w", err)
		}

		resized.Close()
	}

	if !found {
		// degraded window that no longer contains the trigger frame
		return gocv.Mat{}, fmt.Errorf(
			"trigger frame %d absent from recording window", job.TriggerFrame)
	}

	return overview, nil
}

// WriteEventRecording writes one stream's raw recording of an external
// event request into destFolder as <stream>.<ext>
func (w *ArtifactWriter) WriteEventRecording(frames []framebuf.Frame,
	streamNo int, destFolder string) {

	defer closeFrames(frames)

	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Int("stream", streamNo).Interface("panic", r).
				Msg("event recording panic")
		}
	}()

	if len(frames) == 0 {
		return
	}

	if err := os.MkdirAll(destFolder, 0o755); err != nil {
		w.log.Error().Err(err).Msg("creating event folder failed")
		return
	}

	path := filepath.Join(destFolder,
		fmt.Sprintf("%d%s", streamNo, w.cfg.Video.Ext()))

	// the buffered frames are written as captured, only violation
	// recordings are resized to the output resolution
	vw, err := gocv.VideoWriterFile(path, w.cfg.Video.Format,
		float64(w.cfg.FPS), frames[0].Img.Cols(), frames[0].Img.Rows(), true)

	if err != nil {
		w.log.Error().Err(err).Msg("opening event video writer failed")
		return
	}

	defer vw.Close()

	for _, frame := range frames {
		if err := vw.Write(frame.Img); err != nil {
			w.log.Error().Err(err).Msg("writing event frame failed")
			return
		}
	}

	w.log.Info().Int("stream", streamNo).Str("file", path).
		Msg("event recording written")
}

// transcode re-encodes the raw recording with the configured codec
func (w *ArtifactWriter) transcode(src, dst string) error {

	cmd := exec.Command("ffmpeg", "-y", "-i", src,
		"-c:v", w.cfg.Video.TranscodeCodec, "-c:a", "copy", dst)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, out)
	}

	return nil
}

func closeFrames(frames []framebuf.Frame) {
	for i := range frames {
		frames[i].Img.Close()
	}
}
