package ov534

// Sensor image controls. These map the user-facing control values onto
// OV772x register writes; the camera package tracks the current values and
// re-applies them across restarts.

// SetAutogain toggles AGC and AEC. Turning it off clobbers the sensor's
// manual gain and exposure state, the caller re-applies both afterwards.
func (b *Bridge) SetAutogain(on bool) error {
	if on {
		if err := b.SensorWrite(0x13, 0xf7); err != nil {
			return err
		}
		cur, err := b.SensorRead(0x64)
		if err != nil {
			return err
		}
		return b.SensorWrite(0x64, cur|0x03)
	}
	if err := b.SensorWrite(0x13, 0xf0); err != nil {
		return err
	}
	cur, err := b.SensorRead(0x64)
	if err != nil {
		return err
	}
	return b.SensorWrite(0x64, cur&0xfc)
}

// SetAutoWhiteBalance toggles the sensor's AWB loop.
func (b *Bridge) SetAutoWhiteBalance(on bool) error {
	if on {
		return b.SensorWrite(0x63, 0xe0)
	}
	return b.SensorWrite(0x63, 0xaa)
}

// SetGain quantizes 0..63 into the sensor's mantissa plus range-bit gain
// format before writing it.
func (b *Bridge) SetGain(val uint8) error {
	switch val & 0x30 {
	case 0x00:
		val &= 0x0f
	case 0x10:
		val = val&0x0f | 0x30
	case 0x20:
		val = val&0x0f | 0x70
	case 0x30:
		val = val&0x0f | 0xf0
	}
	return b.SensorWrite(0x00, val)
}

// SetExposure splits the value across the AEC high and low registers.
func (b *Bridge) SetExposure(val uint8) error {
	if err := b.SensorWrite(0x08, val>>7); err != nil {
		return err
	}
	return b.SensorWrite(0x10, val<<1)
}

// SetSharpness writes the edge enhancement strength for both resolutions.
func (b *Bridge) SetSharpness(val uint8) error {
	if err := b.SensorWrite(0x91, val); err != nil {
		return err
	}
	return b.SensorWrite(0x8e, val)
}

func (b *Bridge) SetContrast(val uint8) error {
	return b.SensorWrite(0x9c, val)
}

func (b *Bridge) SetBrightness(val uint8) error {
	return b.SensorWrite(0x9b, val)
}

func (b *Bridge) SetHue(val uint8) error {
	return b.SensorWrite(0x01, val)
}

func (b *Bridge) SetRedBalance(val uint8) error {
	return b.SensorWrite(0x43, val)
}

func (b *Bridge) SetBlueBalance(val uint8) error {
	return b.SensorWrite(0x42, val)
}

func (b *Bridge) SetGreenBalance(val uint8) error {
	return b.SensorWrite(0x44, val)
}

// SetFlip mirrors the image along either axis. COM3 bits 6 and 7 are
// inverted, a set bit means normal orientation.
func (b *Bridge) SetFlip(horizontal, vertical bool) error {
	val, err := b.SensorRead(0x0c)
	if err != nil {
		return err
	}
	val &^= 0xc0
	if !horizontal {
		val |= 0x40
	}
	if !vertical {
		val |= 0x80
	}
	return b.SensorWrite(0x0c, val)
}
