// Package config loads the daemon configuration from a YAML file. Every
// tuning constant that depends on the camera installation (driver side
// geometry, thresholds, recording windows) lives here rather than in code.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the full daemon configuration
type Config struct {
	// StreamCount is the number of camera streams the pipeline serves
	StreamCount int `mapstructure:"stream_count"`
	// FPS of the incoming streams
	FPS int `mapstructure:"fps"`

	Log      Log      `mapstructure:"log"`
	Video    Video    `mapstructure:"video_output"`
	Label    Label    `mapstructure:"label"`
	Detector Detector `mapstructure:"detector"`
	Camera   Camera   `mapstructure:"camera_geometry"`
	LPR      LPR      `mapstructure:"lpr"`
	MQTT     MQTT     `mapstructure:"mqtt"`
	API      API      `mapstructure:"api"`
	Workers  Workers  `mapstructure:"workers"`
}

// Log configures logging output
type Log struct {
	// Level is the zerolog level name
	Level string `mapstructure:"level"`
	// Console switches to human readable console output
	Console bool `mapstructure:"console"`
}

// Video configures recorded artifact output
type Video struct {
	// Format is the FourCC of the raw recording codec
	Format string `mapstructure:"format"`
	// DurationSec is the total length of a violation recording in seconds
	DurationSec int `mapstructure:"duration"`
	// ViolationFolder is the root directory for violation artifacts
	ViolationFolder string `mapstructure:"violation_folder"`
	// EventFolder is the root directory for event recordings
	EventFolder string `mapstructure:"event_recording_folder"`
	// Width and Height of the written video and overview image
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
	// TranscodeCodec is the ffmpeg video codec used for the final encode
	TranscodeCodec string `mapstructure:"transcode_codec"`
}

// Label configures the banner drawn on overview images
type Label struct {
	SiteCode int    `mapstructure:"sitecode"`
	RadarID  string `mapstructure:"radar_id"`
	Place    string `mapstructure:"place"`
	DeviceID string `mapstructure:"device_id"`
	Name     string `mapstructure:"name"`
	// Height of the banner strip in pixels
	Height int `mapstructure:"height"`
	// FontFile is an optional TTF used for text outside Hershey font
	// coverage; empty uses the built in Hershey face
	FontFile string `mapstructure:"font_file"`
}

// Detector configures the violation state machine
type Detector struct {
	// MobileThresh is the minimum score for a phone detection to count
	MobileThresh float32 `mapstructure:"mobile_thresh"`
	// NoBeltThresh is the minimum score for a belt-absent detection
	NoBeltThresh float32 `mapstructure:"nobelt_thresh"`
	// BeltThresh is the minimum score for a belt-present detection
	BeltThresh float32 `mapstructure:"belt_thresh"`
	// DebounceFrames is how long a seatbelt trigger must survive belt
	// counter-evidence before it is finalized
	DebounceFrames int `mapstructure:"debounce_frames"`
	// SlotStaleFrames evicts a vehicle slot unseen for this many frames
	SlotStaleFrames int `mapstructure:"slot_stale_frames"`
}

// Camera holds the camera-mounting specific geometry heuristics. The
// defaults match footage where the driver seat is on the right side of
// the cab; a different mounting position needs different values.
type Camera struct {
	// WheelRightOfPx prefers a steering wheel candidate at least this many
	// pixels to the right of the currently assigned one
	WheelRightOfPx float32 `mapstructure:"wheel_right_of_px"`
	// PhoneReachFactor extends the driver-side plausibility boundary to
	// the left of the wheel by this fraction of the wheel width
	PhoneReachFactor float32 `mapstructure:"phone_reach_factor"`
}

// LPR configures plate decoding dispatch
type LPR struct {
	// Enabled toggles asynchronous plate decoding
	Enabled bool `mapstructure:"enabled"`
	// PadX and PadY grow the plate crop before decoding
	PadX int `mapstructure:"pad_x"`
	PadY int `mapstructure:"pad_y"`
	// MinWidth skips decode attempts on plates narrower than this after
	// padding
	MinWidth int `mapstructure:"min_width"`
}

// MQTT configures the message bus connection
type MQTT struct {
	Broker string `mapstructure:"broker"`
	// RequestTopic delivers inbound event recording requests
	RequestTopic string `mapstructure:"request_topic"`
	// VideoTopic carries outbound event video notices
	VideoTopic string `mapstructure:"video_topic"`
}

// API configures the backend REST client
type API struct {
	BaseURL        string `mapstructure:"base_url"`
	AuthPath       string `mapstructure:"auth_path"`
	StatusPath     string `mapstructure:"status_path"`
	ViolationTypes string `mapstructure:"violation_types_path"`
	EventsPath     string `mapstructure:"events_path"`
	PlatesPath     string `mapstructure:"plates_path"`
	// CredsFile is a YAML file holding the backend username and password
	CredsFile string `mapstructure:"creds_file"`
}

// Workers sizes the shared async task pool
type Workers struct {
	// TaskPoolSize bounds the number of concurrent decode and
	// materialization tasks
	TaskPoolSize int `mapstructure:"task_pool_size"`
}

// Load reads the configuration from the given YAML file, applying the
// source system's defaults for anything unset
func Load(path string) (*Config, error) {

	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream_count", 1)
	v.SetDefault("fps", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)

	v.SetDefault("video_output.format", "MP4V")
	v.SetDefault("video_output.duration", 10)
	v.SetDefault("video_output.violation_folder", "violations")
	v.SetDefault("video_output.event_recording_folder", "event_recordings")
	v.SetDefault("video_output.width", 1280)
	v.SetDefault("video_output.height", 720)
	v.SetDefault("video_output.transcode_codec", "libx264")

	v.SetDefault("label.height", 70)

	v.SetDefault("detector.mobile_thresh", 0.10)
	v.SetDefault("detector.nobelt_thresh", 0.10)
	v.SetDefault("detector.belt_thresh", 0.10)
	v.SetDefault("detector.debounce_frames", 30)
	v.SetDefault("detector.slot_stale_frames", 30)

	v.SetDefault("camera_geometry.wheel_right_of_px", 50)
	v.SetDefault("camera_geometry.phone_reach_factor", 0.3)

	v.SetDefault("lpr.enabled", true)
	v.SetDefault("lpr.pad_x", 10)
	v.SetDefault("lpr.pad_y", 5)
	v.SetDefault("lpr.min_width", 50)

	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.request_topic", "events/requests")
	v.SetDefault("mqtt.video_topic", "event_video")

	v.SetDefault("workers.task_pool_size", 4)
}

func (c *Config) validate() error {

	if c.StreamCount < 1 {
		return fmt.Errorf("config: stream_count must be at least 1")
	}

	if c.FPS < 1 {
		return fmt.Errorf("config: fps must be at least 1")
	}

	if c.Video.DurationSec < 2 {
		return fmt.Errorf("config: video_output.duration must be at least 2 seconds")
	}

	if c.Label.DeviceID == "" {
		return fmt.Errorf("config: label.device_id is required")
	}

	return nil
}

// Ext returns the container extension matching the configured codec
func (v Video) Ext() string {
	if v.Format == "MP4V" {
		return ".mp4"
	}
	return ".avi"
}

// RecordingThresh is the number of frames a pending event waits before
// materialization starts. One second is subtracted from the duration
// because the trigger frame is repeated fps times in the output, so a
// recording is thresh + fps + thresh frames long.
func (c *Config) RecordingThresh() int {
	return int(float64(c.FPS) * float64(c.Video.DurationSec-1) / 2)
}

// BufferCapacity is the per-stream frame buffer size: the full recording
// window plus slack because the plate read frame sometimes predates the
// first frame of the window
func (c *Config) BufferCapacity() int {
	return 2*c.RecordingThresh() + 100
}
