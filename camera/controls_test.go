package camera_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oveye/oveye/camera"
)

func TestDefaultControls(t *testing.T) {
	ct := camera.DefaultControls()
	assert.False(t, ct.AutoGain)
	assert.False(t, ct.AutoWhiteBalance)
	assert.EqualValues(t, 20, ct.Gain)
	assert.EqualValues(t, 120, ct.Exposure)
	assert.EqualValues(t, 0, ct.Sharpness)
	assert.EqualValues(t, 143, ct.Hue)
	assert.EqualValues(t, 20, ct.Brightness)
	assert.EqualValues(t, 37, ct.Contrast)
	assert.EqualValues(t, 128, ct.BlueBalance)
	assert.EqualValues(t, 128, ct.RedBalance)
	assert.EqualValues(t, 128, ct.GreenBalance)
	assert.False(t, ct.FlipHorizontal)
	assert.False(t, ct.FlipVertical)
}

func TestApplyControlsDiffsAgainstCurrent(t *testing.T) {
	conn := newFakeConn()
	cam := camera.New(conn, camera.Options{})

	next := cam.Controls()
	next.Gain = 30
	next.FlipVertical = true

	require.NoError(t, cam.ApplyControls(next))

	sw := conn.sensorWrites()
	// Gain 30 quantizes to 0x3e, flip with only vertical set keeps the
	// horizontal-normal bit.
	assert.Contains(t, sw, [2]uint8{0x00, 0x3e})
	assert.Contains(t, sw, [2]uint8{0x0c, 0x40})

	// Unchanged controls stay untouched.
	for _, w := range sw {
		assert.NotEqual(t, uint8(0x9b), w[0], "brightness written without change")
		assert.NotEqual(t, uint8(0x9c), w[0], "contrast written without change")
	}
	assert.Equal(t, next, cam.Controls())
}

func TestApplyControlsNoChangeNoTraffic(t *testing.T) {
	conn := newFakeConn()
	cam := camera.New(conn, camera.Options{})

	require.NoError(t, cam.ApplyControls(cam.Controls()))
	assert.Empty(t, conn.writes)
}

func TestApplyControlsAutogainOffRewritesManualState(t *testing.T) {
	conn := newFakeConn()
	start := camera.DefaultControls()
	start.AutoGain = true
	cam := camera.New(conn, camera.Options{Controls: &start})

	next := start
	next.AutoGain = false

	require.NoError(t, cam.ApplyControls(next))

	sw := conn.sensorWrites()
	assert.Contains(t, sw, [2]uint8{0x13, 0xf0}) // auto loops off
	assert.Contains(t, sw, [2]uint8{0x00, 0x34}) // gain 20 requantized
	assert.Contains(t, sw, [2]uint8{0x08, 0x00}) // exposure high
	assert.Contains(t, sw, [2]uint8{0x10, 0xf0}) // exposure low
}
