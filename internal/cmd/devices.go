package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/oveye/oveye/internal/log"
	"github.com/oveye/oveye/ov534"
	"github.com/oveye/oveye/usbdev"
)

type Devices struct {
	Identify int `help:"Blink the LED of this camera index for a few seconds" default:"-1"`
}

var (
	deviceHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("12")).
				PaddingRight(2)

	deviceRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingRight(2)

	deviceDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

// Run is called by Kong when the devices command is executed.
func (d *Devices) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	usb := usbdev.NewContext(logger, rawLogger)
	defer usb.Close()

	infos, err := usb.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println(deviceDimStyle.Render("No cameras found."))
		return nil
	}

	cols := []int{8, 6, 6, 6, 8}
	header := []string{"INDEX", "BUS", "ADDR", "PORT", "SPEED"}
	var cells []string
	for i, h := range header {
		cells = append(cells, deviceHeaderStyle.Width(cols[i]).Render(h))
	}
	fmt.Println(strings.Join(cells, ""))

	for _, info := range infos {
		row := []string{
			fmt.Sprintf("%d", info.Index),
			fmt.Sprintf("%03d", info.Bus),
			fmt.Sprintf("%03d", info.Address),
			fmt.Sprintf("%d", info.Port),
			info.Speed,
		}
		cells = cells[:0]
		for i, c := range row {
			cells = append(cells, deviceRowStyle.Width(cols[i]).Render(c))
		}
		fmt.Println(strings.Join(cells, ""))
	}

	if d.Identify >= 0 {
		return d.blink(usb, logger)
	}
	return nil
}

// blink toggles the LED so a specific camera can be picked out of a rig.
func (d *Devices) blink(usb *usbdev.Context, logger *slog.Logger) error {
	dev, err := usb.OpenIndex(d.Identify)
	if err != nil {
		return err
	}
	defer dev.Close()

	logger.Info("blinking LED", "index", d.Identify)
	bridge := ov534.NewBridge(dev, logger)
	for i := 0; i < 6; i++ {
		if err := bridge.SetLED(true); err != nil {
			return err
		}
		time.Sleep(250 * time.Millisecond)
		if err := bridge.SetLED(false); err != nil {
			return err
		}
		time.Sleep(250 * time.Millisecond)
	}
	return nil
}
