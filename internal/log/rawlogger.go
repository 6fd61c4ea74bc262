package log

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger handles raw USB traffic log with optional file output.
type RawLogger interface {
	Log(out bool, data []byte)
}

// Bulk reads run to 16 KiB. Dump the head of the chunk only.
const maxRawDump = 64

// rawLogger implements RawLogger with thread-safe log.
type rawLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRaw creates a new RawLogger. If writer is nil, returns a no-op logger.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

// Log emits a single-line raw traffic log with timestamp and hex dump.
// out=true means host->device, out=false means device->host.
func (r *rawLogger) Log(out bool, data []byte) {
	if len(data) == 0 {
		return
	}
	if r.w == nil {
		return
	}

	dir := "D->H"
	if out {
		dir = "H->D"
	}

	dump := data
	if len(dump) > maxRawDump {
		dump = dump[:maxRawDump]
	}
	var hexbuf bytes.Buffer
	const hexdigits = "0123456789abcdef"
	for i, b := range dump {
		if i > 0 {
			hexbuf.WriteByte(' ')
		}
		hexbuf.WriteByte(hexdigits[b>>4])
		hexbuf.WriteByte(hexdigits[b&0x0f])
	}
	if len(data) > maxRawDump {
		fmt.Fprintf(&hexbuf, " .. +%d", len(data)-maxRawDump)
	}

	line := fmt.Sprintf("%s %s chunk: %d bytes, hex: %s\n",
		time.Now().Format("2006/01/02 15:04:05"),
		dir,
		len(data),
		hexbuf.String())

	r.mu.Lock()
	_, _ = r.w.Write([]byte(line))
	r.mu.Unlock()
}
