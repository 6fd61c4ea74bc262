package uvc_test

import (
	"testing"

	"github.com/oveye/oveye/uvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	type testCase struct {
		name      string
		unit      []byte
		wantErr   error
		wantFlags uint8
		wantPTS   uint32
	}

	cases := []testCase{
		{
			name:      "pts only",
			unit:      uvc.BuildUnit(uvc.FlagPTS, 0xdeadbeef, []byte{1, 2, 3}),
			wantFlags: uvc.FlagPTS,
			wantPTS:   0xdeadbeef,
		},
		{
			name:      "eof with fid set",
			unit:      uvc.BuildUnit(uvc.FlagPTS|uvc.FlagEOF|uvc.FlagFID, 100, nil),
			wantFlags: uvc.FlagPTS | uvc.FlagEOF | uvc.FlagFID,
			wantPTS:   100,
		},
		{
			name:    "short unit",
			unit:    []byte{12, 0, 0, 0},
			wantErr: uvc.ErrShortUnit,
		},
		{
			name:    "empty unit",
			unit:    nil,
			wantErr: uvc.ErrShortUnit,
		},
		{
			name:    "wrong length tag",
			unit:    append([]byte{11}, make([]byte, 11)...),
			wantErr: uvc.ErrHeaderLength,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := uvc.ParseHeader(tc.unit)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantFlags, h.Flags)
			assert.Equal(t, tc.wantPTS, h.PTS)
		})
	}
}

func TestHeaderTimestampIsLittleEndian(t *testing.T) {
	unit := uvc.BuildUnit(uvc.FlagPTS, 0x04030201, nil)

	require.Len(t, unit, uvc.HeaderSize)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, unit[2:6])
}

func TestHeaderFlagAccessors(t *testing.T) {
	h := uvc.Header{Flags: uvc.FlagPTS | uvc.FlagFID}
	assert.Equal(t, uint8(1), h.FrameID())
	assert.True(t, h.HasPTS())
	assert.False(t, h.EndOfFrame())
	assert.False(t, h.Err())

	h = uvc.Header{Flags: uvc.FlagERR | uvc.FlagEOF}
	assert.Equal(t, uint8(0), h.FrameID())
	assert.False(t, h.HasPTS())
	assert.True(t, h.EndOfFrame())
	assert.True(t, h.Err())
}

func TestBuildUnitCarriesPayload(t *testing.T) {
	payload := []byte{0xaa, 0xbb, 0xcc}
	unit := uvc.BuildUnit(uvc.FlagPTS|uvc.FlagEOF, 7, payload)

	require.Len(t, unit, uvc.HeaderSize+len(payload))
	assert.Equal(t, payload, unit[uvc.HeaderSize:])
}
