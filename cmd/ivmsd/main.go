// ivmsd runs the violation detection pipeline over recorded detection
// streams, producing the evidentiary artifacts and bus notifications.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/api"
	"github.com/roadeye/ivms/bus"
	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/framebuf"
	"github.com/roadeye/ivms/mot"
	"github.com/roadeye/ivms/pipeline"
	"github.com/roadeye/ivms/plate"
	"github.com/roadeye/ivms/record"
	"github.com/roadeye/ivms/track"
	"github.com/roadeye/ivms/violation"
)

func main() {

	configFile := flag.String("config", "ivms.yaml", "configuration file")
	replayFile := flag.String("replay", "", "replay detections JSONL file")
	videoPattern := flag.String("video", "stream%d.mp4",
		"source video path pattern, %d is the stream number")
	assignIDs := flag.Bool("assign-ids", false,
		"run the built-in tracker to assign vehicle track ids")
	flag.Parse()

	cfg, err := config.Load(*configFile)

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	if *replayFile == "" {
		log.Fatal().Msg("a replay detections file is required, see -replay")
	}

	if err := run(cfg, *replayFile, *videoPattern, *assignIDs, log); err != nil {
		log.Fatal().Err(err).Msg("pipeline failed")
	}
}

func newLogger(cfg config.Log) zerolog.Logger {

	level, err := zerolog.ParseLevel(cfg.Level)

	if err != nil {
		level = zerolog.InfoLevel
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)

	if cfg.Console {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	return log
}

func run(cfg *config.Config, replayFile, videoPattern string, assignIDs bool,
	log zerolog.Logger) error {

	pool := pipeline.NewPool(cfg.Workers.TaskPoolSize, log)
	defer pool.Close()

	writer, err := record.NewArtifactWriter(cfg, log)

	if err != nil {
		return err
	}

	var backend *api.Client

	if cfg.API.BaseURL != "" {
		backend = api.NewClient(cfg.API, log)

		if err := backend.Login(); err != nil {
			log.Warn().Err(err).Msg("backend login failed, api disabled")
			backend = nil
		}
	}

	// the bus client and the materializer reference each other: requests
	// flow bus to materializer, notices flow back
	var mat *record.Materializer

	busClient := bus.NewClient(cfg.MQTT, func(req record.EventRequest) {
		mat.AdmitEventRequest(req)
	}, log)

	var pub record.Publisher

	if err := busClient.Connect(); err != nil {
		log.Warn().Err(err).Msg("bus unavailable, event requests disabled")
	} else {
		pub = busClient
		defer busClient.Disconnect()
	}

	buffers := make([]*framebuf.Buffer, cfg.StreamCount)

	for i := range buffers {
		buffers[i] = framebuf.NewBuffer(cfg.BufferCapacity())
		defer buffers[i].Close()
	}

	var reporter record.EventReporter

	if backend != nil {
		reporter = backend
	}

	mat = record.NewMaterializer(cfg, buffers, pool, writer, pub, reporter, log)

	ids := violation.NewIDGenerator()
	onPlate := plateReporter(cfg, backend, pool, log)

	streams := make([]*pipeline.Stream, cfg.StreamCount)
	recognizers := make([]*replayRecognizer, cfg.StreamCount)

	for i := 0; i < cfg.StreamCount; i++ {

		var assigner *mot.Assigner

		if assignIDs {
			assigner = mot.NewAssigner(cfg.FPS, log)
		}

		recognizers[i] = &replayRecognizer{}

		tracker := track.NewTracker(i, cfg, recognizers[i], pool, onPlate, log)
		defer tracker.Close()

		detector := violation.NewDetector(i, cfg, ids, log)
		streams[i] = pipeline.NewStream(i, buffers[i], assigner, tracker,
			detector, mat, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Int("streams", cfg.StreamCount).Str("replay", replayFile).
		Msg("pipeline started")

	source := newReplaySource(replayFile, videoPattern, recognizers, log)
	err = source.Run(ctx, streams)

	// stop intake and let queued frames drain before the deferred
	// teardown runs
	for _, s := range streams {
		s.Close()
	}

	if err != nil && ctx.Err() == nil {
		return err
	}

	log.Info().Msg("pipeline stopped")

	return nil
}

// plateReporter persists each confirmed plate crop and reports it to the
// backend when one is configured. The callback fires on the stream's
// frame goroutine, so the file and HTTP work goes through the task pool.
func plateReporter(cfg *config.Config, backend *api.Client,
	pool *pipeline.Pool, log zerolog.Logger) func(track.PlateEvent) {

	platesDir := filepath.Join(cfg.Video.ViolationFolder, "plates")

	report := func(ev track.PlateEvent) {

		defer ev.PlateImg.Close()

		if err := os.MkdirAll(platesDir, 0o755); err != nil {
			log.Error().Err(err).Msg("creating plates folder failed")
			return
		}

		path := filepath.Join(platesDir, uuid.NewString()+".png")

		if !gocv.IMWrite(path, ev.PlateImg) {
			log.Error().Str("file", path).Msg("writing plate crop failed")
			return
		}

		log.Info().Int("stream", ev.StreamNo).Int64("track", ev.TrackID).
			Str("plate", ev.Result.FullLabel).Str("file", path).
			Msg("plate crop saved")

		if backend == nil {
			return
		}

		state := plate.StateCode(ev.Result.StateLabel)

		if err := backend.UpdatePlate(path, ev.Result.PlateNumLabel, 0,
			state, "UAE"); err != nil {
			log.Error().Err(err).Msg("reporting plate to backend failed")
		}
	}

	return func(ev track.PlateEvent) {
		if !pool.Submit(func() { report(ev) }) {
			ev.PlateImg.Close()
			log.Warn().Int64("track", ev.TrackID).
				Msg("plate report dropped, pool backlog full")
		}
	}
}
