package stream

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/oveye/oveye/internal/log"
	"github.com/oveye/oveye/uvc"
)

// unitClass is the per-unit classification driving reassembly.
type unitClass int

const (
	classDiscard unitClass = iota
	classFirst
	classMiddle
	classLast
)

// assembler rebuilds frames from the protocol units inside completed bulk
// transfers. It writes straight into the ring's current slot and publishes
// the slot once a frame is complete. All mutable state lives on the pump
// goroutine; the counters are atomics so Stats can read them from anywhere.
//
// A frame starts when the header timestamp or frame-id toggle changes and
// ends when the end-of-frame bit arrives with exactly the right number of
// accumulated bytes. A boundary change with no end marker finalizes the
// frame in progress anyway; some sensors never set the marker.
type assembler struct {
	ring      *Ring
	frameSize int
	unitSize  int
	logger    *slog.Logger
	trace     bool

	slot    []byte
	filled  int
	lastPTS uint32
	lastFID uint8
	last    unitClass

	frames      atomic.Uint64 // complete frames published
	discarded   atomic.Uint64 // units rejected by validation
	shortFrames atomic.Uint64 // forced finalizations dropped as under-filled
	bytes       atomic.Uint64 // payload bytes accepted
}

func newAssembler(ring *Ring, unitSize int, logger *slog.Logger) *assembler {
	return &assembler{
		ring:      ring,
		frameSize: ring.FrameSize(),
		unitSize:  unitSize,
		logger:    logger,
		trace:     logger.Enabled(context.Background(), log.LevelTrace),
		slot:      ring.WriteSlot(),
		last:      classDiscard,
	}
}

// feed walks one completed transfer's payload unit by unit. Every unit is
// nominally unitSize bytes; only the final one may be shorter. A zero-length
// transfer still counts as one corrupt unit and poisons any frame in
// progress.
func (a *assembler) feed(data []byte) {
	for {
		n := len(data)
		if n > a.unitSize {
			n = a.unitSize
		}
		a.scanUnit(data[:n])
		data = data[n:]
		if len(data) == 0 {
			return
		}
	}
}

func (a *assembler) scanUnit(unit []byte) {
	hdr, err := uvc.ParseHeader(unit)
	if err != nil {
		a.discardUnit("bad header")
		return
	}
	if hdr.Err() {
		a.discardUnit("error bit set")
		return
	}
	if !hdr.HasPTS() {
		a.discardUnit("timestamp missing")
		return
	}

	pts, fid := hdr.PTS, hdr.FrameID()
	payload := unit[uvc.HeaderSize:]

	switch {
	case pts != a.lastPTS || fid != a.lastFID:
		// Frame boundary. A frame still mid-accumulation is closed out as
		// if its end marker had arrived.
		if a.last == classMiddle {
			a.add(classLast, nil)
		}
		a.lastPTS, a.lastFID = pts, fid
		a.add(classFirst, payload)
	case hdr.EndOfFrame():
		a.lastPTS = 0
		if a.filled+len(payload) != a.frameSize {
			a.discardUnit("frame size mismatch")
			return
		}
		a.add(classLast, payload)
	default:
		a.add(classMiddle, payload)
	}
}

func (a *assembler) discardUnit(reason string) {
	a.discarded.Add(1)
	if a.trace {
		a.logger.Log(context.Background(), log.LevelTrace, "discarding unit", "reason", reason)
	}
	a.add(classDiscard, nil)
}

// add accumulates one classified unit's payload into the active slot.
func (a *assembler) add(class unitClass, payload []byte) {
	if class == classFirst {
		a.filled = 0
	} else {
		switch a.last {
		case classDiscard:
			// While discarding, only a terminal unit re-arms the scan;
			// everything else stays suppressed.
			if class == classLast {
				a.last = classLast
				a.filled = 0
			}
			return
		case classLast:
			return
		}
	}

	if len(payload) > 0 {
		if a.filled+len(payload) > a.frameSize {
			class = classDiscard
			a.filled = 0
		} else {
			copy(a.slot[a.filled:], payload)
			a.filled += len(payload)
			a.bytes.Add(uint64(len(payload)))
		}
	}

	a.last = class

	if class == classLast {
		a.finalize()
	}
}

// finalize publishes the accumulated frame and retargets the cursor at the
// slot the ring hands back. A forced finalization that never reached full
// size is not a valid frame and is dropped without publishing.
func (a *assembler) finalize() {
	if a.filled != a.frameSize {
		a.shortFrames.Add(1)
		a.filled = 0
		if a.trace {
			a.logger.Log(context.Background(), log.LevelTrace, "dropping under-filled frame")
		}
		return
	}
	a.frames.Add(1)
	a.filled = 0
	a.slot = a.ring.Enqueue()
}
