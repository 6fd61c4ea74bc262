// Package ov534 drives the OV534 USB bridge and its OV772x image sensor:
// vendor register access, the SCCB sidechannel, the init and mode tables,
// LED control and frame rate programming. It speaks to the device through
// the Bus interface and leaves bulk streaming to the stream package.
package ov534

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Bus is the vendor control-transfer surface of the bridge. Implementations
// perform single byte register reads and writes against the device.
type Bus interface {
	ReadRegister(reg uint8) (uint8, error)
	WriteRegister(reg uint8, val uint8) error
}

// ErrSCCB reports a failed sidechannel operation against the sensor.
var ErrSCCB = errors.New("ov534: sccb operation failed")

// sccbRetries bounds the status polls after each sidechannel operation.
const sccbRetries = 5

// Resolution selects one of the two supported sensor modes.
type Resolution int

const (
	VGA  Resolution = iota // 640x480
	QVGA                   // 320x240
)

func (r Resolution) String() string {
	if r == QVGA {
		return "320x240"
	}
	return "640x480"
}

// Bridge issues register sequences against one camera.
type Bridge struct {
	bus    Bus
	logger *slog.Logger
}

func NewBridge(bus Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{bus: bus, logger: logger}
}

func (b *Bridge) writeReg(reg, val uint8) error {
	if err := b.bus.WriteRegister(reg, val); err != nil {
		return fmt.Errorf("write reg 0x%02x: %w", reg, err)
	}
	return nil
}

func (b *Bridge) readReg(reg uint8) (uint8, error) {
	val, err := b.bus.ReadRegister(reg)
	if err != nil {
		return 0, fmt.Errorf("read reg 0x%02x: %w", reg, err)
	}
	return val, nil
}

// sccbStatus polls the sidechannel status register until the pending
// operation settles: 0x00 done, 0x04 failed, 0x03 still busy.
func (b *Bridge) sccbStatus() error {
	for i := 0; i < sccbRetries; i++ {
		status, err := b.readReg(regSCCBStatus)
		if err != nil {
			return err
		}
		switch status {
		case 0x00:
			return nil
		case 0x04:
			return ErrSCCB
		case 0x03:
		default:
			b.logger.Debug("unexpected sccb status",
				"status", fmt.Sprintf("0x%02x", status), "attempt", i+1)
		}
	}
	return fmt.Errorf("%w: busy after %d polls", ErrSCCB, sccbRetries)
}

// SensorWrite writes one sensor register over the sidechannel.
func (b *Bridge) SensorWrite(reg, val uint8) error {
	if err := b.writeReg(regSCCBSubaddr, reg); err != nil {
		return err
	}
	if err := b.writeReg(regSCCBWrite, val); err != nil {
		return err
	}
	if err := b.writeReg(regSCCBOperation, opWrite3); err != nil {
		return err
	}
	if err := b.sccbStatus(); err != nil {
		return fmt.Errorf("sensor write 0x%02x: %w", reg, err)
	}
	return nil
}

// SensorRead reads one sensor register over the sidechannel. The address
// is latched with a two byte write, then a read cycle fetches the value.
func (b *Bridge) SensorRead(reg uint8) (uint8, error) {
	if err := b.writeReg(regSCCBSubaddr, reg); err != nil {
		return 0, err
	}
	if err := b.writeReg(regSCCBOperation, opWrite2); err != nil {
		return 0, err
	}
	if err := b.sccbStatus(); err != nil {
		return 0, fmt.Errorf("sensor read 0x%02x: %w", reg, err)
	}
	if err := b.writeReg(regSCCBOperation, opRead2); err != nil {
		return 0, err
	}
	if err := b.sccbStatus(); err != nil {
		return 0, fmt.Errorf("sensor read 0x%02x: %w", reg, err)
	}
	return b.readReg(regSCCBRead)
}

func (b *Bridge) writeBridgeTable(seq []regVal) error {
	for _, rv := range seq {
		if err := b.writeReg(rv.reg, rv.val); err != nil {
			return err
		}
	}
	return nil
}

// writeSensorTable plays a sensor sequence. A 0xff register is a quirk
// entry: read the register named by the value, then write 0xff = 0x00.
func (b *Bridge) writeSensorTable(seq []regVal) error {
	for _, rv := range seq {
		if rv.reg != 0xff {
			if err := b.SensorWrite(rv.reg, rv.val); err != nil {
				return err
			}
			continue
		}
		if _, err := b.SensorRead(rv.val); err != nil {
			return err
		}
		if err := b.SensorWrite(0xff, 0x00); err != nil {
			return err
		}
	}
	return nil
}

// Initialize resets the bridge and sensor, probes the sensor id and plays
// both init tables. The camera is left idle with the stream gate closed
// and the LED off. Returns the probed sensor id (0x7721 on real hardware).
func (b *Bridge) Initialize() (uint16, error) {
	if err := b.writeReg(0xe7, 0x3a); err != nil {
		return 0, err
	}
	if err := b.writeReg(regStreamCtrl, streamHold); err != nil {
		return 0, err
	}
	time.Sleep(100 * time.Millisecond)

	if err := b.writeReg(regSCCBAddress, sensorAddress); err != nil {
		return 0, err
	}
	if err := b.SensorWrite(0x12, 0x80); err != nil {
		return 0, fmt.Errorf("sensor reset: %w", err)
	}
	time.Sleep(10 * time.Millisecond)

	id, err := b.ProbeSensor()
	if err != nil {
		return 0, err
	}
	b.logger.Debug("sensor probed", "id", fmt.Sprintf("0x%04x", id))

	if err := b.writeBridgeTable(bridgeInit); err != nil {
		return 0, err
	}
	if err := b.SetLED(true); err != nil {
		return 0, err
	}
	if err := b.writeSensorTable(sensorInit); err != nil {
		return 0, err
	}
	if err := b.writeReg(regStreamCtrl, streamOff); err != nil {
		return 0, err
	}
	if err := b.SetLED(false); err != nil {
		return 0, err
	}
	return id, nil
}

// ProbeSensor reads the sensor id registers. Each register is read twice,
// the first read primes the sidechannel.
func (b *Bridge) ProbeSensor() (uint16, error) {
	if _, err := b.SensorRead(0x0a); err != nil {
		return 0, err
	}
	hi, err := b.SensorRead(0x0a)
	if err != nil {
		return 0, err
	}
	if _, err := b.SensorRead(0x0b); err != nil {
		return 0, err
	}
	lo, err := b.SensorRead(0x0b)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// ProgramMode plays the mode tables for res and programs the closest
// supported frame rate. Returns the rate actually chosen.
func (b *Bridge) ProgramMode(res Resolution, fps int) (int, error) {
	bridgeSeq, sensorSeq := bridgeStartVGA, sensorStartVGA
	if res == QVGA {
		bridgeSeq, sensorSeq = bridgeStartQVGA, sensorStartQVGA
	}
	if err := b.writeBridgeTable(bridgeSeq); err != nil {
		return 0, err
	}
	if err := b.writeSensorTable(sensorSeq); err != nil {
		return 0, err
	}
	return b.ApplyFrameRate(res, fps)
}

// ApplyFrameRate programs the clock dividers for the closest supported
// rate at res and returns the rate chosen.
func (b *Bridge) ApplyFrameRate(res Resolution, fps int) (int, error) {
	r := nearestRate(res, fps)
	if err := b.SensorWrite(0x11, r.r11); err != nil {
		return 0, err
	}
	if err := b.SensorWrite(0x0d, r.r0d); err != nil {
		return 0, err
	}
	if err := b.writeReg(0xe5, r.re5); err != nil {
		return 0, err
	}
	b.logger.Debug("frame rate programmed", "fps", r.fps)
	return r.fps, nil
}

// PickFrameRate reports the rate the sensor would run at res for a
// requested fps, without touching the device.
func PickFrameRate(res Resolution, fps int) int {
	return nearestRate(res, fps).fps
}

// nearestRate walks the table from fastest to slowest and picks the first
// rate not above want, falling back to the slowest supported.
func nearestRate(res Resolution, want int) frameRate {
	rates := vgaRates
	if res == QVGA {
		rates = qvgaRates
	}
	idx := 0
	for i := len(rates) - 1; i > 0; i-- {
		if want >= rates[idx].fps {
			break
		}
		idx++
	}
	return rates[idx]
}

// SetLED drives the LED. The direction bit is raised before the output
// bit and dropped again after turning the LED off.
func (b *Bridge) SetLED(on bool) error {
	data, err := b.readReg(regLEDDirection)
	if err != nil {
		return err
	}
	if err := b.writeReg(regLEDDirection, data|ledBit); err != nil {
		return err
	}

	data, err = b.readReg(regLEDOutput)
	if err != nil {
		return err
	}
	if on {
		data |= ledBit
	} else {
		data &^= ledBit
	}
	if err := b.writeReg(regLEDOutput, data); err != nil {
		return err
	}

	if !on {
		data, err = b.readReg(regLEDDirection)
		if err != nil {
			return err
		}
		if err := b.writeReg(regLEDDirection, data&^ledBit); err != nil {
			return err
		}
	}
	return nil
}

// SetStreaming opens or closes the stream gate feeding the bulk endpoint.
func (b *Bridge) SetStreaming(on bool) error {
	if on {
		return b.writeReg(regStreamCtrl, streamOn)
	}
	return b.writeReg(regStreamCtrl, streamOff)
}
