package camera_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oveye/oveye/camera"
	"github.com/oveye/oveye/ov534"
)

func TestModeResolution(t *testing.T) {
	tests := []struct {
		name string
		mode camera.Mode
		want ov534.Resolution
	}{
		{"zero size gets vga", camera.Mode{}, ov534.VGA},
		{"exact qvga", camera.Mode{Width: 320, Height: 240}, ov534.QVGA},
		{"small sizes round up to qvga", camera.Mode{Width: 100, Height: 100}, ov534.QVGA},
		{"wide gets vga", camera.Mode{Width: 640, Height: 240}, ov534.VGA},
		{"tall gets vga", camera.Mode{Width: 320, Height: 480}, ov534.VGA},
		{"oversized gets vga", camera.Mode{Width: 1920, Height: 1080}, ov534.VGA},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.mode.Resolution())
		})
	}
}

func TestModeNormalization(t *testing.T) {
	conn := newFakeConn()

	tests := []struct {
		name      string
		mode      camera.Mode
		wantMode  string
		frameSize int
	}{
		{"defaults", camera.Mode{}, "640x480@60", 614400},
		{"qvga fast", camera.Mode{Width: 320, Height: 240, FPS: 187}, "320x240@187", 153600},
		{"vga rate rounds down", camera.Mode{Width: 640, Height: 480, FPS: 55}, "640x480@50", 614400},
		{"qvga rate above table", camera.Mode{Width: 100, Height: 100, FPS: 300}, "320x240@205", 153600},
		{"vga below slowest", camera.Mode{Width: 640, Height: 480, FPS: 5}, "640x480@15", 614400},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cam := camera.New(conn, camera.Options{Mode: tc.mode})
			assert.Equal(t, tc.wantMode, cam.Mode().String())
			assert.Equal(t, tc.frameSize, cam.Mode().FrameSize())
		})
	}
}

func TestModeStride(t *testing.T) {
	m := camera.Mode{Width: 640, Height: 480}
	assert.Equal(t, 1280, m.Stride())
	assert.Equal(t, 614400, m.FrameSize())
}
