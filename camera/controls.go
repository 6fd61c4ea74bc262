package camera

import "fmt"

// Controls holds the sensor image controls. The zero value is not the
// hardware default, use DefaultControls.
type Controls struct {
	AutoGain         bool  `json:"autogain" yaml:"autogain" toml:"autogain"`
	AutoWhiteBalance bool  `json:"awb" yaml:"awb" toml:"awb"`
	Gain             uint8 `json:"gain" yaml:"gain" toml:"gain"`
	Exposure         uint8 `json:"exposure" yaml:"exposure" toml:"exposure"`
	Sharpness        uint8 `json:"sharpness" yaml:"sharpness" toml:"sharpness"`
	Hue              uint8 `json:"hue" yaml:"hue" toml:"hue"`
	Brightness       uint8 `json:"brightness" yaml:"brightness" toml:"brightness"`
	Contrast         uint8 `json:"contrast" yaml:"contrast" toml:"contrast"`
	BlueBalance      uint8 `json:"blue_balance" yaml:"blue_balance" toml:"blue_balance"`
	RedBalance       uint8 `json:"red_balance" yaml:"red_balance" toml:"red_balance"`
	GreenBalance     uint8 `json:"green_balance" yaml:"green_balance" toml:"green_balance"`
	FlipHorizontal   bool  `json:"flip_horizontal" yaml:"flip_horizontal" toml:"flip_horizontal"`
	FlipVertical     bool  `json:"flip_vertical" yaml:"flip_vertical" toml:"flip_vertical"`
}

// DefaultControls are the values every session starts from.
func DefaultControls() Controls {
	return Controls{
		Gain:         20,
		Exposure:     120,
		Hue:          143,
		Brightness:   20,
		Contrast:     37,
		BlueBalance:  128,
		RedBalance:   128,
		GreenBalance: 128,
	}
}

// applyControls programs every control in the order the sensor expects:
// the auto loops first, then the manual values they may have clobbered.
func (c *Camera) applyControls() error {
	ct := c.controls
	steps := []struct {
		name string
		fn   func() error
	}{
		{"autogain", func() error { return c.bridge.SetAutogain(ct.AutoGain) }},
		{"awb", func() error { return c.bridge.SetAutoWhiteBalance(ct.AutoWhiteBalance) }},
		{"gain", func() error { return c.bridge.SetGain(ct.Gain) }},
		{"hue", func() error { return c.bridge.SetHue(ct.Hue) }},
		{"exposure", func() error { return c.bridge.SetExposure(ct.Exposure) }},
		{"brightness", func() error { return c.bridge.SetBrightness(ct.Brightness) }},
		{"contrast", func() error { return c.bridge.SetContrast(ct.Contrast) }},
		{"sharpness", func() error { return c.bridge.SetSharpness(ct.Sharpness) }},
		{"red balance", func() error { return c.bridge.SetRedBalance(ct.RedBalance) }},
		{"blue balance", func() error { return c.bridge.SetBlueBalance(ct.BlueBalance) }},
		{"green balance", func() error { return c.bridge.SetGreenBalance(ct.GreenBalance) }},
		{"flip", func() error { return c.bridge.SetFlip(ct.FlipHorizontal, ct.FlipVertical) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("apply %s: %w", s.name, err)
		}
	}
	return nil
}

// ApplyControls diffs next against the current controls and programs only
// what changed. Used for live control updates while streaming.
func (c *Camera) ApplyControls(next Controls) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.controls
	if next == cur {
		return nil
	}

	if next.AutoGain != cur.AutoGain {
		if err := c.bridge.SetAutogain(next.AutoGain); err != nil {
			return fmt.Errorf("apply autogain: %w", err)
		}
		if !next.AutoGain {
			// Leaving autogain clobbers the sensor's manual gain and
			// exposure state, both get rewritten.
			if err := c.bridge.SetGain(next.Gain); err != nil {
				return fmt.Errorf("apply gain: %w", err)
			}
			if err := c.bridge.SetExposure(next.Exposure); err != nil {
				return fmt.Errorf("apply exposure: %w", err)
			}
			cur.Gain, cur.Exposure = next.Gain, next.Exposure
		}
	}
	if next.AutoWhiteBalance != cur.AutoWhiteBalance {
		if err := c.bridge.SetAutoWhiteBalance(next.AutoWhiteBalance); err != nil {
			return fmt.Errorf("apply awb: %w", err)
		}
	}
	if next.Gain != cur.Gain {
		if err := c.bridge.SetGain(next.Gain); err != nil {
			return fmt.Errorf("apply gain: %w", err)
		}
	}
	if next.Exposure != cur.Exposure {
		if err := c.bridge.SetExposure(next.Exposure); err != nil {
			return fmt.Errorf("apply exposure: %w", err)
		}
	}
	if next.Sharpness != cur.Sharpness {
		if err := c.bridge.SetSharpness(next.Sharpness); err != nil {
			return fmt.Errorf("apply sharpness: %w", err)
		}
	}
	if next.Hue != cur.Hue {
		if err := c.bridge.SetHue(next.Hue); err != nil {
			return fmt.Errorf("apply hue: %w", err)
		}
	}
	if next.Brightness != cur.Brightness {
		if err := c.bridge.SetBrightness(next.Brightness); err != nil {
			return fmt.Errorf("apply brightness: %w", err)
		}
	}
	if next.Contrast != cur.Contrast {
		if err := c.bridge.SetContrast(next.Contrast); err != nil {
			return fmt.Errorf("apply contrast: %w", err)
		}
	}
	if next.RedBalance != cur.RedBalance {
		if err := c.bridge.SetRedBalance(next.RedBalance); err != nil {
			return fmt.Errorf("apply red balance: %w", err)
		}
	}
	if next.BlueBalance != cur.BlueBalance {
		if err := c.bridge.SetBlueBalance(next.BlueBalance); err != nil {
			return fmt.Errorf("apply blue balance: %w", err)
		}
	}
	if next.GreenBalance != cur.GreenBalance {
		if err := c.bridge.SetGreenBalance(next.GreenBalance); err != nil {
			return fmt.Errorf("apply green balance: %w", err)
		}
	}
	if next.FlipHorizontal != cur.FlipHorizontal || next.FlipVertical != cur.FlipVertical {
		if err := c.bridge.SetFlip(next.FlipHorizontal, next.FlipVertical); err != nil {
			return fmt.Errorf("apply flip: %w", err)
		}
	}

	c.controls = next
	c.logger.Debug("controls updated")
	return nil
}

// Controls returns the currently applied control values.
func (c *Camera) Controls() Controls {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controls
}
