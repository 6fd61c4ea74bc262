package camera

import (
	"github.com/kelindar/event"
)

// Event type identifiers for the dispatcher.
const (
	TypeStreamStarted uint32 = iota + 1
	TypeStreamStopped
	TypeFramesDropped
)

// StreamStartedEvent is published once the transfer pool is running.
type StreamStartedEvent struct {
	Session string
	Width   int
	Height  int
	FPS     int
}

func (e StreamStartedEvent) Type() uint32 { return TypeStreamStarted }

// StreamStoppedEvent closes a session. Error is empty on a clean stop and
// carries the transport failure otherwise.
type StreamStoppedEvent struct {
	Session string
	Error   string
}

func (e StreamStoppedEvent) Type() uint32 { return TypeStreamStopped }

// FramesDroppedEvent reports ring overwrites noticed since the previous
// read; published from the consumer side, never the capture path.
type FramesDroppedEvent struct {
	Session string
	Count   uint64
	Total   uint64
}

func (e FramesDroppedEvent) Type() uint32 { return TypeFramesDropped }

// Bus carries camera lifecycle events to subscribers. A nil Bus is valid
// and drops everything.
type Bus struct {
	dispatcher *event.Dispatcher
}

func NewBus() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Subscribe registers handler for the event type it accepts and returns an
// unsubscribe function.
func Subscribe[T event.Event](b *Bus, handler func(T)) func() {
	return event.Subscribe(b.dispatcher, handler)
}

func publish[T event.Event](b *Bus, ev T) {
	if b == nil {
		return
	}
	event.Publish(b.dispatcher, ev)
}
