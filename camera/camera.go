// Package camera exposes the PS3 Eye as a Go API: device initialization,
// the streaming lifecycle, blocking frame reads and live image controls.
// It composes the ov534 register protocol with the stream capture pipeline
// over any Conn implementation.
package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oveye/oveye/ov534"
	"github.com/oveye/oveye/stream"
)

// ErrNotStreaming is returned by ReadFrame outside a streaming session.
var ErrNotStreaming = errors.New("camera: not streaming")

// Conn is an open control and bulk connection to one camera.
type Conn interface {
	ov534.Bus
	// OpenBulk claims the streaming endpoint for one session.
	OpenBulk() (stream.Endpoint, error)
	Close() error
}

// Frame is one complete captured image in the sensor's packed YUYV layout.
// Data is owned by the receiver.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Stride    int
	Seq       uint64
	Session   string
	Timestamp time.Time
}

// Options configure a Camera. The zero value gives VGA at 60 fps with the
// hardware default controls.
type Options struct {
	Mode       Mode
	Controls   *Controls
	QueueDepth int // frame ring slots, minimum 2
	Transfers  int // in-flight bulk reads, default stream.DefaultTransfers
	Logger     *slog.Logger
	Metrics    *stream.Metrics
	Events     *Bus
}

// Camera drives one device. All methods are safe for concurrent use; the
// expected shape is one goroutine calling ReadFrame in a loop while others
// adjust controls or stop the session.
type Camera struct {
	conn    Conn
	bridge  *ov534.Bridge
	logger  *slog.Logger
	events  *Bus
	metrics *stream.Metrics

	queueDepth int
	transfers  int
	sensorID   uint16

	mu        sync.Mutex
	mode      Mode
	controls  Controls
	streaming bool
	session   string
	started   time.Time
	mgr       *stream.Manager
	lastErr   error

	seq       atomic.Uint64
	lastDrops atomic.Uint64
}

func New(conn Conn, opts Options) *Camera {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	controls := DefaultControls()
	if opts.Controls != nil {
		controls = *opts.Controls
	}
	return &Camera{
		conn:       conn,
		bridge:     ov534.NewBridge(conn, logger),
		logger:     logger,
		events:     opts.Events,
		metrics:    opts.Metrics,
		queueDepth: opts.QueueDepth,
		transfers:  opts.Transfers,
		mode:       opts.Mode.normalize(),
		controls:   controls,
	}
}

// Init resets and programs the device, leaving it idle with streaming off.
func (c *Camera) Init() error {
	id, err := c.bridge.Initialize()
	if err != nil {
		return fmt.Errorf("camera init: %w", err)
	}
	c.sensorID = id
	c.logger.Info("camera initialized",
		"sensor_id", fmt.Sprintf("0x%04x", id), "mode", c.Mode().String())
	return nil
}

// SensorID returns the probed sensor id, valid after Init.
func (c *Camera) SensorID() uint16 { return c.sensorID }

// Start programs the capture mode, applies the image controls, opens the
// stream gate and spins up the transfer pipeline. Returns nil when already
// streaming.
func (c *Camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming {
		return nil
	}

	fps, err := c.bridge.ProgramMode(c.mode.Resolution(), c.mode.FPS)
	if err != nil {
		return fmt.Errorf("program mode: %w", err)
	}
	c.mode.FPS = fps

	if err := c.applyControls(); err != nil {
		return err
	}
	if err := c.bridge.SetLED(true); err != nil {
		return err
	}
	if err := c.bridge.SetStreaming(true); err != nil {
		return err
	}

	ep, err := c.conn.OpenBulk()
	if err != nil {
		c.quiesce()
		return fmt.Errorf("open bulk endpoint: %w", err)
	}

	mgr := stream.New(stream.Config{
		FrameSize:  c.mode.FrameSize(),
		QueueDepth: c.queueDepth,
		Transfers:  c.transfers,
		Logger:     c.logger,
		Metrics:    c.metrics,
		OnFatal:    c.streamFailed,
	})
	if err := mgr.Start(ep); err != nil {
		c.quiesce()
		return fmt.Errorf("start transfers: %w", err)
	}

	c.mgr = mgr
	c.streaming = true
	c.session = uuid.NewString()
	c.started = time.Now()
	c.lastErr = nil
	c.lastDrops.Store(0)
	c.seq.Store(0)

	c.logger.Info("streaming started",
		"session", c.session, "mode", c.mode.String(),
		"frame_size", c.mode.FrameSize())
	publish(c.events, StreamStartedEvent{
		Session: c.session,
		Width:   c.mode.Width,
		Height:  c.mode.Height,
		FPS:     c.mode.FPS,
	})
	return nil
}

// quiesce closes the stream gate and turns the LED off. Failures are only
// logged, the device may already be gone.
func (c *Camera) quiesce() {
	if err := c.bridge.SetStreaming(false); err != nil {
		c.logger.Debug("stream gate close failed", "error", err)
	}
	if err := c.bridge.SetLED(false); err != nil {
		c.logger.Debug("led off failed", "error", err)
	}
}

// Stop closes the stream gate and tears the transfer pipeline down.
// Idempotent; returns the terminal transport failure, if any.
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Camera) stopLocked() error {
	if !c.streaming {
		return nil
	}
	c.quiesce()
	err := c.mgr.Close()
	if err != nil && c.lastErr == nil {
		c.lastErr = err
	}
	session := c.session
	c.streaming = false
	c.mgr = nil

	c.logger.Info("streaming stopped", "session", session)
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	publish(c.events, StreamStoppedEvent{Session: session, Error: errText})
	return err
}

// streamFailed runs on the pipeline's fatal hook after a transport error
// quiesced the transfers.
func (c *Camera) streamFailed(err error) {
	c.logger.Error("streaming failed", "error", err)
	c.mu.Lock()
	if c.lastErr == nil {
		c.lastErr = err
	}
	c.mu.Unlock()
	_ = c.Stop()
}

// ReadFrame blocks until a complete frame arrives and returns an owned
// copy. Once the session ends it returns ErrNotStreaming, stream.ErrClosed
// or, after a transport failure, the terminal error.
func (c *Camera) ReadFrame() (Frame, error) {
	c.mu.Lock()
	mgr, mode, session := c.mgr, c.mode, c.session
	c.mu.Unlock()
	if mgr == nil {
		if err := c.Err(); err != nil {
			return Frame{}, fmt.Errorf("streaming failed: %w", err)
		}
		return Frame{}, ErrNotStreaming
	}

	data, err := mgr.Dequeue()
	if err != nil {
		if lastErr := c.Err(); lastErr != nil {
			return Frame{}, fmt.Errorf("streaming failed: %w", lastErr)
		}
		return Frame{}, err
	}

	c.noteDrops(mgr, session)
	return Frame{
		Data:      data,
		Width:     mode.Width,
		Height:    mode.Height,
		Stride:    mode.Stride(),
		Seq:       c.seq.Add(1),
		Session:   session,
		Timestamp: time.Now(),
	}, nil
}

// noteDrops publishes FramesDroppedEvent when the ring overwrote frames
// since the previous read.
func (c *Camera) noteDrops(mgr *stream.Manager, session string) {
	total := mgr.Stats().DroppedFrames
	prev := c.lastDrops.Swap(total)
	if total > prev {
		publish(c.events, FramesDroppedEvent{
			Session: session,
			Count:   total - prev,
			Total:   total,
		})
	}
}

// Err returns the transport failure that ended the last session, or nil.
func (c *Camera) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Mode returns the normalized capture mode.
func (c *Camera) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Session returns the current session id, empty when idle.
func (c *Camera) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming {
		return ""
	}
	return c.session
}

// Stats is a point-in-time view of the current streaming session.
type Stats struct {
	Session  string
	Mode     Mode
	Uptime   time.Duration
	Pipeline stream.Stats
}

func (c *Camera) Stats() Stats {
	c.mu.Lock()
	mgr := c.mgr
	s := Stats{Session: c.session, Mode: c.mode}
	if c.streaming {
		s.Uptime = time.Since(c.started)
	}
	c.mu.Unlock()

	if mgr != nil {
		s.Pipeline = mgr.Stats()
	}
	return s
}

// Close stops any active session and releases the device connection.
func (c *Camera) Close() error {
	stopErr := c.Stop()
	closeErr := c.conn.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
