package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func charAt(label string, minX, minY, maxX, maxY float32) replayChar {
	return replayChar{
		Label: label,
		Score: 0.8,
		Poly: [4][2]float32{
			{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY},
		},
	}
}

func replayPlate() []replayChar {

	chars := []replayChar{charAt("plate_number", 0, 0, 100, 30)}

	for i, l := range []string{"1", "2", "3", "4", "5"} {
		x := float32(i * 20)
		chars = append(chars, charAt(l, x, 0, x+20, 30))
	}

	return chars
}

func TestReplayRecognizerDecodesOfferedChars(t *testing.T) {

	r := &replayRecognizer{}
	r.offer(replayPlate())

	crop := gocv.NewMatWithSize(30, 200, gocv.MatTypeCV8UC3)
	defer crop.Close()

	res := r.Recognize(crop)

	require.NotNil(t, res)
	assert.Equal(t, "12345", res.PlateNumLabel)

	// the set is consumed, a second decode has nothing to read
	assert.Nil(t, r.Recognize(crop))
}

func TestReplayRecognizerEmptyOfferKeepsPending(t *testing.T) {

	r := &replayRecognizer{}
	r.offer(replayPlate())

	// frames without OCR output never clear a pending set
	r.offer(nil)

	crop := gocv.NewMatWithSize(30, 200, gocv.MatTypeCV8UC3)
	defer crop.Close()

	require.NotNil(t, r.Recognize(crop))
}
