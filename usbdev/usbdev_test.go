package usbdev

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oveye/oveye/stream"
)

func TestCompletionForMapsStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status stream.Status
	}{
		{"success", nil, stream.StatusCompleted},
		{"context cancelled", context.Canceled, stream.StatusCancelled},
		{"wrapped cancel", fmt.Errorf("read: %w", context.Canceled), stream.StatusCancelled},
		{"transfer cancelled", gousb.TransferCancelled, stream.StatusCancelled},
		{"device gone", gousb.ErrorNoDevice, stream.StatusError},
		{"short read", io.ErrUnexpectedEOF, stream.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := completionFor(3, 512, tt.err)
			assert.Equal(t, 3, c.ID)
			assert.Equal(t, 512, c.N)
			assert.Equal(t, tt.status, c.Status)
			if tt.status == stream.StatusError {
				assert.ErrorIs(t, c.Err, tt.err)
			} else {
				assert.NoError(t, c.Err)
			}
		})
	}
}

func TestBulkInNumber(t *testing.T) {
	setting := gousb.InterfaceSetting{
		Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{
			0x81: {
				Address:      0x81,
				Number:       1,
				Direction:    gousb.EndpointDirectionIn,
				TransferType: gousb.TransferTypeBulk,
			},
			0x02: {
				Address:      0x02,
				Number:       2,
				Direction:    gousb.EndpointDirectionOut,
				TransferType: gousb.TransferTypeBulk,
			},
		},
	}
	num, ok := bulkInNumber(setting)
	require.True(t, ok)
	assert.Equal(t, 1, num)

	_, ok = bulkInNumber(gousb.InterfaceSetting{})
	assert.False(t, ok)
}

func TestInfoString(t *testing.T) {
	info := Info{Index: 0, Bus: 3, Address: 14, Port: 2, Speed: "high"}
	assert.Equal(t, "camera 0 at bus 003 addr 014 port 2 (high)", info.String())
}
