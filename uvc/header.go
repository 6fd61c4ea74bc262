// Package uvc decodes the UVC-style payload headers that prefix every
// protocol unit in the OV534 bulk video stream.
package uvc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed header length. The bridge always emits 12-byte
// headers; a different length tag marks a corrupt unit.
const HeaderSize = 12

// Flag bits of the bmHeaderInfo byte (header byte 1).
const (
	FlagFID uint8 = 1 << 0 // frame id, toggles between successive frames
	FlagEOF uint8 = 1 << 1 // end of frame
	FlagPTS uint8 = 1 << 2 // presentation timestamp present
	FlagSTI uint8 = 1 << 5 // still image
	FlagERR uint8 = 1 << 6 // payload error
	FlagEOH uint8 = 1 << 7 // end of header
)

var (
	ErrShortUnit    = errors.New("uvc: unit shorter than header")
	ErrHeaderLength = errors.New("uvc: header length tag is not 12")
)

// Header is the decoded payload header of one protocol unit. PTS is the
// little-endian 32-bit timestamp at header bytes 2..5; it identifies which
// frame the unit belongs to and is only meaningful when FlagPTS is set.
type Header struct {
	Flags uint8
	PTS   uint32
}

// ParseHeader decodes the header at the start of unit. The remaining bytes
// of the unit (unit[HeaderSize:]) are frame payload.
func ParseHeader(unit []byte) (Header, error) {
	if len(unit) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortUnit, len(unit))
	}
	if unit[0] != HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d", ErrHeaderLength, unit[0])
	}
	return Header{
		Flags: unit[1],
		PTS:   binary.LittleEndian.Uint32(unit[2:6]),
	}, nil
}

// FrameID returns the single-bit frame id (0 or 1).
func (h Header) FrameID() uint8 {
	return h.Flags & FlagFID
}

func (h Header) EndOfFrame() bool { return h.Flags&FlagEOF != 0 }
func (h Header) HasPTS() bool     { return h.Flags&FlagPTS != 0 }
func (h Header) Err() bool        { return h.Flags&FlagERR != 0 }

// AppendHeader appends the 12-byte encoding of h to dst. Header bytes 6..11
// (the source clock reference) are zero; the bridge does not fill them and
// nothing downstream reads them.
func AppendHeader(dst []byte, h Header) []byte {
	var buf [HeaderSize]byte
	buf[0] = HeaderSize
	buf[1] = h.Flags
	binary.LittleEndian.PutUint32(buf[2:6], h.PTS)
	return append(dst, buf[:]...)
}

// BuildUnit assembles one complete protocol unit: a header with the given
// flags and timestamp followed by payload.
func BuildUnit(flags uint8, pts uint32, payload []byte) []byte {
	unit := AppendHeader(make([]byte, 0, HeaderSize+len(payload)), Header{Flags: flags, PTS: pts})
	return append(unit, payload...)
}
