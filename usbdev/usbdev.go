// Package usbdev binds the camera stack to physical hardware through
// google/gousb. It owns device discovery, the vendor control channel used
// for register access, and the bulk IN endpoint the streaming pipeline
// reads from.
package usbdev

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/oveye/oveye/internal/log"
	"github.com/oveye/oveye/ov534"
	"github.com/oveye/oveye/stream"
)

const (
	// The bridge moves one register byte per vendor control request.
	vendorRequest  = 0x01
	controlTimeout = 500 * time.Millisecond

	reqClearFeature     = 0x01
	featureEndpointHalt = 0x00

	typeVendorOut = gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice
	typeVendorIn  = gousb.ControlIn | gousb.ControlVendor | gousb.ControlDevice
)

// ErrNoDevice means enumeration found no camera at the requested index.
var ErrNoDevice = errors.New("no camera found")

// Info identifies one attached camera without opening it.
type Info struct {
	Index   int
	Bus     int
	Address int
	Port    int
	Speed   string
}

func (i Info) String() string {
	return fmt.Sprintf("camera %d at bus %03d addr %03d port %d (%s)",
		i.Index, i.Bus, i.Address, i.Port, i.Speed)
}

// Context wraps the libusb context shared by every open device.
type Context struct {
	usb    *gousb.Context
	logger *slog.Logger
	raw    log.RawLogger
}

// NewContext initialises libusb. The raw logger receives register and bulk
// traffic and may be nil.
func NewContext(logger *slog.Logger, raw log.RawLogger) *Context {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Context{usb: gousb.NewContext(), logger: logger, raw: raw}
}

// Close shuts libusb down. Call only after every device is closed.
func (c *Context) Close() error { return c.usb.Close() }

func isCamera(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == gousb.ID(ov534.VendorID) && desc.Product == gousb.ID(ov534.ProductID)
}

// List enumerates attached cameras in libusb order without opening them.
func (c *Context) List() ([]Info, error) {
	var found []Info
	devs, err := c.usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if isCamera(desc) {
			found = append(found, Info{
				Index:   len(found),
				Bus:     desc.Bus,
				Address: desc.Address,
				Port:    desc.Port,
				Speed:   desc.Speed.String(),
			})
		}
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("enumerate cameras: %w", err)
	}
	return found, nil
}

// Open claims the first attached camera. See OpenIndex.
func (c *Context) Open() (*Device, error) { return c.OpenIndex(0) }

// OpenIndex claims the camera at the given List position: detaches any
// kernel driver, selects configuration 1 and claims interface 0 so both
// the control channel and the bulk endpoint are usable.
func (c *Context) OpenIndex(index int) (*Device, error) {
	var seen int
	devs, err := c.usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !isCamera(desc) {
			return false
		}
		seen++
		return seen-1 == index
	})
	if len(devs) == 0 {
		if err != nil {
			return nil, fmt.Errorf("open camera %d: %w", index, err)
		}
		return nil, ErrNoDevice
	}
	dev := devs[0]
	for _, d := range devs[1:] {
		_ = d.Close()
	}

	dev.ControlTimeout = controlTimeout
	if err := dev.SetAutoDetach(true); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("detach kernel driver: %w", err)
	}
	cfg, err := dev.Config(1)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("select configuration: %w", err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		_ = cfg.Close()
		_ = dev.Close()
		return nil, fmt.Errorf("claim interface: %w", err)
	}
	epNum, ok := bulkInNumber(intf.Setting)
	if !ok {
		intf.Close()
		_ = cfg.Close()
		_ = dev.Close()
		return nil, errors.New("no bulk IN endpoint")
	}

	c.logger.Debug("camera opened",
		"bus", dev.Desc.Bus,
		"addr", dev.Desc.Address,
		"endpoint", epNum)
	return &Device{
		dev:    dev,
		cfg:    cfg,
		intf:   intf,
		epNum:  epNum,
		logger: c.logger,
		raw:    c.raw,
	}, nil
}

// bulkInNumber picks the bulk IN endpoint out of an interface setting.
func bulkInNumber(s gousb.InterfaceSetting) (int, bool) {
	for _, ep := range s.Endpoints {
		if ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeBulk {
			return ep.Number, true
		}
	}
	return 0, false
}

// Device is one open camera. Registers move over the vendor control
// channel, OpenBulk exposes the streaming endpoint. Implements
// camera.Conn.
type Device struct {
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	epNum  int
	logger *slog.Logger
	raw    log.RawLogger

	mu     sync.Mutex
	closed bool
}

// WriteRegister sets one bridge register.
func (d *Device) WriteRegister(reg uint8, val uint8) error {
	if _, err := d.dev.Control(typeVendorOut, vendorRequest, 0, uint16(reg), []byte{val}); err != nil {
		return fmt.Errorf("control write 0x%02x: %w", reg, err)
	}
	if d.raw != nil {
		d.raw.Log(true, []byte{reg, val})
	}
	return nil
}

// ReadRegister fetches one bridge register.
func (d *Device) ReadRegister(reg uint8) (uint8, error) {
	var buf [1]byte
	if _, err := d.dev.Control(typeVendorIn, vendorRequest, 0, uint16(reg), buf[:]); err != nil {
		return 0, fmt.Errorf("control read 0x%02x: %w", reg, err)
	}
	if d.raw != nil {
		d.raw.Log(false, []byte{reg, buf[0]})
	}
	return buf[0], nil
}

// OpenBulk opens the bulk IN endpoint for streaming.
func (d *Device) OpenBulk() (stream.Endpoint, error) {
	in, err := d.intf.InEndpoint(d.epNum)
	if err != nil {
		return nil, fmt.Errorf("open bulk endpoint %d: %w", d.epNum, err)
	}
	return newEndpoint(d, in), nil
}

// clearHalt issues CLEAR_FEATURE(ENDPOINT_HALT) as a standard control
// request. gousb has no dedicated wrapper for it.
func (d *Device) clearHalt(addr uint8) error {
	if _, err := d.dev.Control(gousb.ControlOut|gousb.ControlEndpoint, reqClearFeature, featureEndpointHalt, uint16(addr), nil); err != nil {
		return fmt.Errorf("clear halt 0x%02x: %w", addr, err)
	}
	return nil
}

// Close releases the interface and the underlying libusb handle. Safe to
// call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.intf.Close()
	err := d.cfg.Close()
	if cerr := d.dev.Close(); err == nil {
		err = cerr
	}
	return err
}
