package record

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/roadeye/ivms/framebuf"
)

// event recordings keep the frames as captured even when the configured
// output resolution differs
func TestWriteEventRecordingKeepsSourceResolution(t *testing.T) {

	cfg := testConfig(1)
	require.NotEqual(t, 64, cfg.Video.Width)

	w := &ArtifactWriter{cfg: cfg, log: zerolog.Nop()}

	frames := make([]framebuf.Frame, 10)

	for i := range frames {
		frames[i] = framebuf.Frame{
			Index: i,
			Img:   gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3),
		}
	}

	dest := t.TempDir()
	w.WriteEventRecording(frames, 0, dest)

	vc, err := gocv.VideoCaptureFile(filepath.Join(dest, "0.mp4"))
	require.NoError(t, err)
	defer vc.Close()

	img := gocv.NewMat()
	defer img.Close()

	require.True(t, vc.Read(&img))
	assert.Equal(t, 64, img.Cols())
	assert.Equal(t, 48, img.Rows())
}

func TestWriteEventRecordingEmptyWindow(t *testing.T) {

	cfg := testConfig(1)
	w := &ArtifactWriter{cfg: cfg, log: zerolog.Nop()}

	dest := t.TempDir()
	w.WriteEventRecording(nil, 0, dest)

	matches, err := filepath.Glob(filepath.Join(dest, "*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
