package camera

import (
	"fmt"

	"github.com/oveye/oveye/ov534"
)

// Mode is a capture configuration. Width and height select the sensor
// resolution, FPS the requested frame rate; both are normalized to what
// the hardware actually supports when the camera is created.
type Mode struct {
	Width  int `json:"width" yaml:"width" toml:"width"`
	Height int `json:"height" yaml:"height" toml:"height"`
	FPS    int `json:"fps" yaml:"fps" toml:"fps"`
}

// Resolution maps the requested size onto one of the two sensor modes.
// A zero size or anything larger than 320x240 selects VGA.
func (m Mode) Resolution() ov534.Resolution {
	if (m.Width == 0 && m.Height == 0) || m.Width > 320 || m.Height > 240 {
		return ov534.VGA
	}
	return ov534.QVGA
}

// normalize resolves the mode to the exact size and rate the sensor will
// deliver. A zero FPS asks for 60.
func (m Mode) normalize() Mode {
	res := m.Resolution()
	if res == ov534.QVGA {
		m.Width, m.Height = 320, 240
	} else {
		m.Width, m.Height = 640, 480
	}
	if m.FPS <= 0 {
		m.FPS = 60
	}
	m.FPS = ov534.PickFrameRate(res, m.FPS)
	return m
}

// Stride is the byte width of one row, two bytes per pixel.
func (m Mode) Stride() int { return m.Width * 2 }

// FrameSize is the byte size of one complete frame.
func (m Mode) FrameSize() int { return m.Stride() * m.Height }

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%d", m.Width, m.Height, m.FPS)
}
