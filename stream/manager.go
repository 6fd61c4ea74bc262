// Package stream implements the camera's bulk capture pipeline: a fixed
// pool of always-in-flight transfers against the device's bulk endpoint,
// reassembly of the protocol units inside each completed transfer, and the
// lossy frame ring the application reads from.
//
// One internal pump goroutine processes every completion and runs the
// reassembly synchronously; the application's only touch point is Dequeue,
// which blocks until a complete frame is available and returns an owned
// copy. Individual transfer failures are not retried: any transport error
// tears the whole session down, because bulk endpoint faults on this device
// are not recoverable without a restream.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const (
	// TransferSize is the request size of one bulk read.
	TransferSize = 16384
	// DefaultTransfers is how many bulk reads stay in flight.
	DefaultTransfers = 8
	// DefaultUnitSize matches the payload unit size programmed into the
	// bridge during init: 2048 bytes per unit in bulk mode.
	DefaultUnitSize = 2048
)

var (
	ErrNotStarted     = errors.New("stream: manager not started")
	ErrAlreadyStarted = errors.New("stream: manager already started")
)

// Config sizes one capture pipeline.
type Config struct {
	// FrameSize is the byte size of one complete frame (stride x height).
	FrameSize int
	// QueueDepth is the ring slot count; the effective number of frames
	// that can wait unread is QueueDepth-1. Values below 2 are raised.
	QueueDepth int
	// Transfers is the in-flight pool size. Defaults to DefaultTransfers.
	Transfers int
	// TransferSize is the size of each bulk read. Defaults to TransferSize.
	TransferSize int
	// UnitSize is the protocol unit stride inside a completed transfer.
	// Defaults to DefaultUnitSize.
	UnitSize int

	Logger  *slog.Logger
	Metrics *Metrics

	// OnFatal is invoked at most once, on its own goroutine, after a
	// transport failure has quiesced the pipeline. Close must still be
	// called; it returns the same failure.
	OnFatal func(error)
}

func (c Config) withDefaults() Config {
	if c.Transfers <= 0 {
		c.Transfers = DefaultTransfers
	}
	if c.TransferSize <= 0 {
		c.TransferSize = TransferSize
	}
	if c.UnitSize <= 0 {
		c.UnitSize = DefaultUnitSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Frames         uint64 // complete frames published to the ring
	DroppedFrames  uint64 // ring overwrites caused by a slow consumer
	DiscardedUnits uint64 // protocol units rejected during reassembly
	ShortFrames    uint64 // forced finalizations dropped as under-filled
	PayloadBytes   uint64 // payload bytes accepted into frames
	Completions    uint64 // bulk transfer completions of any status
	Queued         int    // frames currently waiting in the ring
}

// Manager owns one capture pipeline: the transfer pool, the reassembly
// state and the frame ring. A Manager is single-use; it is created, started
// once and closed once per streaming session.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	ep   Endpoint
	sem  *semaphore.Weighted
	bufs [][]byte

	stopping atomic.Bool
	stopOnce sync.Once
	stopC    chan struct{}
	pumpDone chan struct{}

	mu      sync.Mutex
	ring    *Ring
	asm     *assembler
	started bool
	closing bool
	closed  bool
	failure error

	completions atomic.Uint64

	// metric delta bookkeeping, pump goroutine only
	prevFrames, prevDiscarded, prevShort, prevBytes, prevDrops uint64
}

// New prepares a pipeline with the given configuration. Nothing happens
// until Start.
func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger,
		stopC:    make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// Start allocates the ring and the transfer buffers, clears any halt on the
// endpoint, submits the whole transfer pool and starts the pump goroutine.
// Each in-flight transfer holds one semaphore permit until its terminal
// completion; shutdown reclaims every permit before buffers are released.
func (m *Manager) Start(ep Endpoint) error {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ring = NewRing(m.cfg.FrameSize, m.cfg.QueueDepth)
	m.asm = newAssembler(m.ring, m.cfg.UnitSize, m.logger)
	m.mu.Unlock()

	m.ep = ep
	m.sem = semaphore.NewWeighted(int64(m.cfg.Transfers))

	if err := ep.ClearHalt(); err != nil {
		m.abortStart(0, err)
		return fmt.Errorf("clear halt: %w", err)
	}

	m.bufs = make([][]byte, m.cfg.Transfers)
	for i := range m.bufs {
		m.bufs[i] = make([]byte, m.cfg.TransferSize)
	}

	for i := range m.bufs {
		_ = m.sem.Acquire(context.Background(), 1)
		if err := ep.Submit(i, m.bufs[i]); err != nil {
			m.sem.Release(1)
			m.abortStart(i, err)
			return fmt.Errorf("submit transfer %d: %w", i, err)
		}
	}

	m.logger.Debug("transfer pool started",
		"transfers", m.cfg.Transfers,
		"transfer_size", m.cfg.TransferSize,
		"frame_size", m.cfg.FrameSize,
		"queue_depth", m.cfg.QueueDepth)

	go m.pump()
	return nil
}

// abortStart unwinds a partially started pipeline: cancels the submitted
// transfers, waits for their completions and leaves the manager closed.
func (m *Manager) abortStart(submitted int, cause error) {
	m.stopping.Store(true)
	m.stopOnce.Do(func() { close(m.stopC) })

	for id := 0; id < submitted; id++ {
		m.ep.Cancel(id)
	}
	for done := 0; done < submitted; done++ {
		<-m.ep.Completions()
		m.sem.Release(1)
	}

	m.mu.Lock()
	m.ring.Close()
	m.closing = true
	m.closed = true
	m.failure = cause
	m.mu.Unlock()
	close(m.pumpDone)
	m.bufs = nil
}

// pump is the pipeline's only internal goroutine. It runs every completion
// callback and everything downstream of it: reassembly, ring publication
// and resubmission. It exits once every transfer has reached a terminal
// completion.
func (m *Manager) pump() {
	defer close(m.pumpDone)
	defer func() {
		m.mu.Lock()
		ring := m.ring
		m.mu.Unlock()
		ring.Close()

		if err := m.Err(); err != nil && m.cfg.OnFatal != nil {
			go m.cfg.OnFatal(err)
		}
	}()

	inflight := len(m.bufs)
	stop := m.stopC
	for inflight > 0 {
		select {
		case c := <-m.ep.Completions():
			if m.handle(c) {
				continue
			}
			inflight--
		case <-stop:
			stop = nil
			m.cancelAll()
		}
	}
}

// handle processes one completion on the pump goroutine. It reports whether
// the transfer went back in flight; a false return means the transfer
// reached its terminal completion and released its permit.
func (m *Manager) handle(c Completion) bool {
	m.completions.Add(1)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.Completions.WithLabelValues(c.Status.String()).Inc()
	}

	if m.stopping.Load() {
		// Teardown in progress: every completion is terminal no matter how
		// it finished.
		m.sem.Release(1)
		return false
	}

	switch c.Status {
	case StatusCompleted:
		m.asm.feed(m.bufs[c.ID][:c.N])
		m.publishMetrics()
		if err := m.ep.Submit(c.ID, m.bufs[c.ID]); err != nil {
			m.sem.Release(1)
			m.fail(fmt.Errorf("resubmit transfer %d: %w", c.ID, err))
			return false
		}
		return true
	case StatusCancelled:
		m.sem.Release(1)
		return false
	default:
		m.sem.Release(1)
		m.fail(fmt.Errorf("transfer %d failed: %w", c.ID, c.Err))
		return false
	}
}

// fail records the first transport failure and initiates teardown from
// within the completion path. The pump keeps draining until every transfer
// is terminal, so this never blocks.
func (m *Manager) fail(err error) {
	m.mu.Lock()
	if m.failure == nil {
		m.failure = err
	}
	m.mu.Unlock()

	m.logger.Error("transport failure, stopping capture", "error", err)
	m.stopping.Store(true)
	m.stopOnce.Do(func() { close(m.stopC) })
	m.cancelAll()
}

func (m *Manager) cancelAll() {
	for id := range m.bufs {
		m.ep.Cancel(id)
	}
}

// Close shuts the pipeline down: stop flag, cancellation of every
// outstanding transfer, a wait for all permits to come back, then the pump
// join and buffer release. Idempotent and safe to call when never started.
// Returns the terminal transport failure, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.started {
		m.closed = true
		m.mu.Unlock()
		return nil
	}
	first := !m.closing
	m.closing = true
	m.mu.Unlock()

	m.stopping.Store(true)
	m.stopOnce.Do(func() { close(m.stopC) })

	if first {
		// No completion may still be running or pending once this returns;
		// only then is it safe to drop the buffers.
		_ = m.sem.Acquire(context.Background(), int64(m.cfg.Transfers))
	}
	<-m.pumpDone

	m.mu.Lock()
	m.closed = true
	err := m.failure
	m.bufs = nil
	m.mu.Unlock()

	m.logger.Debug("transfer pool closed")
	return err
}

// Dequeue blocks until a complete frame is available and returns an owned
// copy of it. Returns ErrClosed once the pipeline has shut down.
func (m *Manager) Dequeue() ([]byte, error) {
	m.mu.Lock()
	ring := m.ring
	m.mu.Unlock()
	if ring == nil {
		return nil, ErrNotStarted
	}
	return ring.Dequeue()
}

// Err returns the transport failure that terminated the session, or nil.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// Stats snapshots the pipeline counters. Valid any time after Start.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	ring, asm := m.ring, m.asm
	m.mu.Unlock()
	if asm == nil {
		return Stats{}
	}
	return Stats{
		Frames:         asm.frames.Load(),
		DroppedFrames:  ring.Drops(),
		DiscardedUnits: asm.discarded.Load(),
		ShortFrames:    asm.shortFrames.Load(),
		PayloadBytes:   asm.bytes.Load(),
		Completions:    m.completions.Load(),
		Queued:         ring.Available(),
	}
}

// publishMetrics pushes counter deltas to prometheus after each feed.
func (m *Manager) publishMetrics() {
	mt := m.cfg.Metrics
	if mt == nil {
		return
	}
	frames := m.asm.frames.Load()
	discarded := m.asm.discarded.Load()
	short := m.asm.shortFrames.Load()
	bytes := m.asm.bytes.Load()
	drops := m.ring.Drops()

	mt.Frames.Add(float64(frames - m.prevFrames))
	mt.DiscardedUnits.Add(float64(discarded - m.prevDiscarded))
	mt.ShortFrames.Add(float64(short - m.prevShort))
	mt.PayloadBytes.Add(float64(bytes - m.prevBytes))
	mt.DroppedFrames.Add(float64(drops - m.prevDrops))

	m.prevFrames, m.prevDiscarded, m.prevShort = frames, discarded, short
	m.prevBytes, m.prevDrops = bytes, drops
}
