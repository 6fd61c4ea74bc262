package usbdev

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/gousb"

	"github.com/oveye/oveye/stream"
)

// endpoint adapts a gousb bulk IN endpoint to the stream.Endpoint
// contract. Every submitted read runs on its own goroutine under a
// per-read cancel context; results funnel into a single completions
// channel.
type endpoint struct {
	dev *Device
	in  *gousb.InEndpoint
	out chan stream.Completion

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
}

func newEndpoint(d *Device, in *gousb.InEndpoint) *endpoint {
	return &endpoint{
		dev:     d,
		in:      in,
		out:     make(chan stream.Completion, stream.DefaultTransfers*2),
		cancels: make(map[int]context.CancelFunc),
	}
}

func (e *endpoint) Submit(id int, buf []byte) error {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if _, ok := e.cancels[id]; ok {
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("transfer %d already in flight", id)
	}
	e.cancels[id] = cancel
	e.mu.Unlock()

	go e.read(ctx, id, buf)
	return nil
}

func (e *endpoint) read(ctx context.Context, id int, buf []byte) {
	n, err := e.in.ReadContext(ctx, buf)

	// Drop the cancel func before delivering so a late Cancel for a
	// finished read is a no-op.
	e.mu.Lock()
	if cancel := e.cancels[id]; cancel != nil {
		cancel()
		delete(e.cancels, id)
	}
	e.mu.Unlock()

	if err == nil && n > 0 && e.dev.raw != nil {
		e.dev.raw.Log(false, buf[:n])
	}
	e.out <- completionFor(id, n, err)
}

// completionFor maps a gousb read result onto the transfer status model.
func completionFor(id, n int, err error) stream.Completion {
	c := stream.Completion{ID: id, N: n}
	switch {
	case err == nil:
		c.Status = stream.StatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, gousb.TransferCancelled):
		c.Status = stream.StatusCancelled
	default:
		c.Status = stream.StatusError
		c.Err = err
	}
	return c
}

func (e *endpoint) Cancel(id int) {
	e.mu.Lock()
	cancel := e.cancels[id]
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *endpoint) Completions() <-chan stream.Completion {
	return e.out
}

func (e *endpoint) ClearHalt() error {
	return e.dev.clearHalt(uint8(e.in.Desc.Address))
}
