package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ivms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoadAppliesDefaults(t *testing.T) {

	cfg, err := Load(writeConfig(t, `
label:
  device_id: cam01
`))

	require.NoError(t, err)

	assert.Equal(t, 1, cfg.StreamCount)
	assert.Equal(t, 30, cfg.FPS)
	assert.Equal(t, "MP4V", cfg.Video.Format)
	assert.Equal(t, 10, cfg.Video.DurationSec)
	assert.Equal(t, float32(0.10), cfg.Detector.MobileThresh)
	assert.Equal(t, 30, cfg.Detector.SlotStaleFrames)
	assert.Equal(t, float32(50), cfg.Camera.WheelRightOfPx)
	assert.Equal(t, float32(0.3), cfg.Camera.PhoneReachFactor)
	assert.True(t, cfg.LPR.Enabled)
	assert.Equal(t, 50, cfg.LPR.MinWidth)
}

func TestLoadOverrides(t *testing.T) {

	cfg, err := Load(writeConfig(t, `
stream_count: 4
fps: 25
label:
  device_id: cam02
video_output:
  format: XVID
  duration: 8
detector:
  debounce_frames: 45
`))

	require.NoError(t, err)

	assert.Equal(t, 4, cfg.StreamCount)
	assert.Equal(t, 25, cfg.FPS)
	assert.Equal(t, ".avi", cfg.Video.Ext())
	assert.Equal(t, 45, cfg.Detector.DebounceFrames)
}

func TestLoadRequiresDeviceID(t *testing.T) {

	_, err := Load(writeConfig(t, `
stream_count: 1
`))

	assert.Error(t, err)
}

func TestRecordingWindowMath(t *testing.T) {

	cfg := &Config{
		FPS:   30,
		Video: Video{DurationSec: 10},
	}

	assert.Equal(t, 135, cfg.RecordingThresh())
	assert.Equal(t, 370, cfg.BufferCapacity())
}

func TestVideoExt(t *testing.T) {

	assert.Equal(t, ".mp4", Video{Format: "MP4V"}.Ext())
	assert.Equal(t, ".avi", Video{Format: "XVID"}.Ext())
}
