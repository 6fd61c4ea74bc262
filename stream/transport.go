package stream

// Status classifies how a submitted transfer finished.
type Status int

const (
	// StatusCompleted means the read finished and the buffer holds N bytes.
	StatusCompleted Status = iota
	// StatusCancelled means the read was cancelled, normally during
	// shutdown. Never treated as a failure.
	StatusCancelled
	// StatusError covers every other terminal outcome (stall, device gone,
	// transport fault).
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Completion reports the outcome of one submitted transfer.
type Completion struct {
	ID     int
	N      int // bytes written into the transfer's buffer
	Status Status
	Err    error // non-nil for StatusError
}

// Endpoint is an asynchronous bulk IN endpoint carrying multiple outstanding
// reads.
//
// Contract:
//   - Submit begins one read into buf. Its outcome is delivered exactly once
//     on the Completions channel; after that delivery the implementation must
//     not touch buf again. When Submit returns an error the read was never
//     started and no completion is delivered for it.
//   - Cancel requests cancellation of the outstanding read with the given id.
//     The read still completes through the channel, with StatusCancelled if
//     the cancellation won. Cancelling an id with no outstanding read is a
//     no-op.
//   - Completions returns one channel shared by all reads, buffered for at
//     least as many reads as are ever outstanding so delivery never blocks
//     the transport. Only the pipeline's pump goroutine receives from it.
//   - ClearHalt clears a halt/stall condition on the endpoint before
//     streaming starts.
type Endpoint interface {
	Submit(id int, buf []byte) error
	Cancel(id int)
	Completions() <-chan Completion
	ClearHalt() error
}
