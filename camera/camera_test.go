package camera_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oveye/oveye/camera"
	"github.com/oveye/oveye/stream"
	"github.com/oveye/oveye/uvc"
)

// fakeEndpoint stands in for the device's bulk endpoint. Cancel finishes
// outstanding reads immediately so shutdown never hangs.
type fakeEndpoint struct {
	mu          sync.Mutex
	completions chan stream.Completion
	outstanding map[int][]byte
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{
		completions: make(chan stream.Completion, 64),
		outstanding: map[int][]byte{},
	}
}

func (f *fakeEndpoint) Submit(id int, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outstanding[id] = buf
	return nil
}

func (f *fakeEndpoint) Cancel(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.outstanding[id]; !ok {
		return
	}
	delete(f.outstanding, id)
	f.completions <- stream.Completion{ID: id, Status: stream.StatusCancelled}
}

func (f *fakeEndpoint) Completions() <-chan stream.Completion { return f.completions }

func (f *fakeEndpoint) ClearHalt() error { return nil }

func (f *fakeEndpoint) waitOutstanding(t *testing.T, id int) []byte {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		buf, ok := f.outstanding[id]
		f.mu.Unlock()
		if ok {
			return buf
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("transfer %d never became outstanding", id)
	return nil
}

func (f *fakeEndpoint) complete(t *testing.T, id int, units ...[]byte) {
	t.Helper()
	buf := f.waitOutstanding(t, id)
	f.mu.Lock()
	delete(f.outstanding, id)
	n := 0
	for _, u := range units {
		copy(buf[n:], u)
		n += len(u)
	}
	f.mu.Unlock()
	f.completions <- stream.Completion{ID: id, N: n, Status: stream.StatusCompleted}
}

func (f *fakeEndpoint) fail(t *testing.T, id int, err error) {
	t.Helper()
	f.waitOutstanding(t, id)
	f.mu.Lock()
	delete(f.outstanding, id)
	f.mu.Unlock()
	f.completions <- stream.Completion{ID: id, Status: stream.StatusError, Err: err}
}

// fakeConn pairs a register map with the fake endpoint. Reads come from a
// per-register queue when one is scripted, otherwise from the last write.
type fakeConn struct {
	mu      sync.Mutex
	regs    map[uint8]uint8
	queues  map[uint8][]uint8
	writes  [][2]uint8
	ep      *fakeEndpoint
	openErr error
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		regs:   map[uint8]uint8{},
		queues: map[uint8][]uint8{},
		ep:     newFakeEndpoint(),
	}
}

func (f *fakeConn) ReadRegister(reg uint8) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q := f.queues[reg]; len(q) > 0 {
		f.queues[reg] = q[1:]
		return q[0], nil
	}
	return f.regs[reg], nil
}

func (f *fakeConn) WriteRegister(reg, val uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, [2]uint8{reg, val})
	f.regs[reg] = val
	return nil
}

func (f *fakeConn) OpenBulk() (stream.Endpoint, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.ep, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) wrote(reg, val uint8) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.writes {
		if w == [2]uint8{reg, val} {
			return true
		}
	}
	return false
}

// sensorWrites extracts sidechannel write pairs from the register traffic.
func (f *fakeConn) sensorWrites() [][2]uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][2]uint8
	for i := 0; i+2 < len(f.writes); i++ {
		if f.writes[i][0] == 0xf2 && f.writes[i+1][0] == 0xf3 &&
			f.writes[i+2] == [2]uint8{0xf5, 0x37} {
			out = append(out, [2]uint8{f.writes[i][1], f.writes[i+1][1]})
		}
	}
	return out
}

func unitOf(flags uint8, pts uint32, fill byte, n int) []byte {
	return uvc.BuildUnit(flags|uvc.FlagPTS, pts, bytes.Repeat([]byte{fill}, n))
}

// frameUnits cuts one complete frame of fill bytes into protocol units of
// at most 2036 payload bytes, ending with the EOF unit.
func frameUnits(pts uint32, fill byte, frameSize int) [][]byte {
	var units [][]byte
	remaining := frameSize
	for remaining > 0 {
		n := 2036
		flags := uint8(0)
		if n >= remaining {
			n = remaining
			flags = uvc.FlagEOF
		}
		units = append(units, unitOf(flags, pts, fill, n))
		remaining -= n
	}
	return units
}

func TestCameraInitProbesSensor(t *testing.T) {
	conn := newFakeConn()
	conn.queues[0xf4] = []uint8{0x77, 0x77, 0x21, 0x21}
	cam := camera.New(conn, camera.Options{})

	require.NoError(t, cam.Init())
	assert.EqualValues(t, 0x7721, cam.SensorID())

	// Init leaves the stream gate closed.
	assert.True(t, conn.wrote(0xe0, 0x09))
	assert.False(t, conn.wrote(0xe0, 0x00))
}

func TestCameraStartStopLifecycle(t *testing.T) {
	conn := newFakeConn()
	cam := camera.New(conn, camera.Options{})

	require.NoError(t, cam.Start())
	assert.NotEmpty(t, cam.Session())
	assert.Equal(t, "640x480@60", cam.Mode().String())

	// Mode tables, stream gate open, LED on.
	assert.True(t, conn.wrote(0xc0, 0x50))
	assert.True(t, conn.wrote(0xe0, 0x00))
	assert.True(t, conn.wrote(0x23, 0x80))

	// Starting again while streaming is a no-op.
	session := cam.Session()
	require.NoError(t, cam.Start())
	assert.Equal(t, session, cam.Session())

	require.NoError(t, cam.Stop())
	assert.Empty(t, cam.Session())
	assert.True(t, conn.wrote(0xe0, 0x09))

	require.NoError(t, cam.Stop())
}

func TestCameraReadFrame(t *testing.T) {
	conn := newFakeConn()
	events := camera.NewBus()
	started := make(chan camera.StreamStartedEvent, 1)
	camera.Subscribe(events, func(e camera.StreamStartedEvent) { started <- e })

	cam := camera.New(conn, camera.Options{
		Mode:   camera.Mode{Width: 320, Height: 240, FPS: 187},
		Events: events,
	})
	require.NoError(t, cam.Start())

	frameSize := cam.Mode().FrameSize()
	require.Equal(t, 153600, frameSize)

	units := frameUnits(42, 0x55, frameSize)
	id := 0
	for len(units) > 0 {
		n := min(8, len(units))
		conn.ep.complete(t, id, units[:n]...)
		units = units[n:]
		id = (id + 1) % 8
	}

	frame, err := cam.ReadFrame()
	require.NoError(t, err)
	assert.Len(t, frame.Data, frameSize)
	assert.EqualValues(t, 0x55, frame.Data[0])
	assert.EqualValues(t, 0x55, frame.Data[frameSize-1])
	assert.Equal(t, 320, frame.Width)
	assert.Equal(t, 240, frame.Height)
	assert.Equal(t, 640, frame.Stride)
	assert.EqualValues(t, 1, frame.Seq)
	assert.Equal(t, cam.Session(), frame.Session)

	stats := cam.Stats()
	assert.EqualValues(t, 1, stats.Pipeline.Frames)
	assert.EqualValues(t, frameSize, stats.Pipeline.PayloadBytes)

	select {
	case e := <-started:
		assert.Equal(t, frame.Session, e.Session)
		assert.Equal(t, 187, e.FPS)
	case <-time.After(time.Second):
		t.Fatal("StreamStartedEvent never delivered")
	}

	require.NoError(t, cam.Stop())
	_, err = cam.ReadFrame()
	assert.ErrorIs(t, err, camera.ErrNotStreaming)
}

func TestCameraStreamFailureStopsSession(t *testing.T) {
	conn := newFakeConn()
	events := camera.NewBus()
	stopped := make(chan camera.StreamStoppedEvent, 1)
	camera.Subscribe(events, func(e camera.StreamStoppedEvent) { stopped <- e })

	cam := camera.New(conn, camera.Options{Events: events})
	require.NoError(t, cam.Start())

	cause := errors.New("device detached")
	conn.ep.fail(t, 3, cause)

	select {
	case e := <-stopped:
		assert.Contains(t, e.Error, "device detached")
	case <-time.After(time.Second):
		t.Fatal("StreamStoppedEvent never delivered")
	}

	require.Eventually(t, func() bool { return cam.Session() == "" },
		time.Second, time.Millisecond)
	assert.ErrorIs(t, cam.Err(), cause)

	_, err := cam.ReadFrame()
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, camera.ErrNotStreaming)
}

func TestCameraStartOpenBulkFailure(t *testing.T) {
	conn := newFakeConn()
	conn.openErr = errors.New("claim failed")
	cam := camera.New(conn, camera.Options{})

	err := cam.Start()
	require.ErrorIs(t, err, conn.openErr)

	// The stream gate was reopened and closed again on the way out.
	assert.True(t, conn.wrote(0xe0, 0x00))
	assert.True(t, conn.wrote(0xe0, 0x09))
	assert.Empty(t, cam.Session())
}

func TestCameraCloseReleasesConn(t *testing.T) {
	conn := newFakeConn()
	cam := camera.New(conn, camera.Options{})
	require.NoError(t, cam.Start())
	require.NoError(t, cam.Close())
	assert.True(t, conn.closed)
	assert.Empty(t, cam.Session())
}
