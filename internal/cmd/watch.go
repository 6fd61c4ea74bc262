package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oveye/oveye/camera"
	"github.com/oveye/oveye/internal/log"
	"github.com/oveye/oveye/usbdev"
)

type Watch struct {
	Device int `help:"Camera index from the devices list" default:"0" env:"OVEYE_DEVICE"`
	Width  int `help:"Frame width" default:"640"`
	Height int `help:"Frame height" default:"480"`
	FPS    int `help:"Frame rate" default:"60"`
}

// Run is called by Kong when the watch command is executed.
func (w *Watch) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	usb := usbdev.NewContext(logger, rawLogger)
	defer usb.Close()

	dev, err := usb.OpenIndex(w.Device)
	if err != nil {
		return err
	}

	cam := camera.New(dev, camera.Options{
		Mode:   camera.Mode{Width: w.Width, Height: w.Height, FPS: w.FPS},
		Logger: logger,
	})
	defer cam.Close()

	if err := cam.Init(); err != nil {
		return err
	}
	if err := cam.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Drain the frame queue so the pipeline keeps flowing while the
	// dashboard only looks at counters.
	var consumed atomic.Uint64
	go func() {
		for {
			if _, err := cam.ReadFrame(); err != nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
					continue
				}
			}
			consumed.Add(1)
		}
	}()

	p := tea.NewProgram(newWatchModel(cam, &consumed), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

var (
	watchTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	watchLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Width(16)

	watchValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	watchStatusStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				PaddingLeft(1)

	watchErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true).
			PaddingLeft(1)
)

const watchRefresh = time.Second

// watchTickMsg is sent every watchRefresh to trigger a stats refresh.
type watchTickMsg time.Time

// watchRestartMsg reports the outcome of a stream restart.
type watchRestartMsg struct{ err error }

// watchModel is the bubbletea model for the capture dashboard.
type watchModel struct {
	cam      *camera.Camera
	consumed *atomic.Uint64

	stats  camera.Stats
	frames uint64
	fps    uint64
	err    error
	width  int
	height int
}

func newWatchModel(cam *camera.Camera, consumed *atomic.Uint64) watchModel {
	return watchModel{cam: cam, consumed: consumed, stats: cam.Stats()}
}

func (m watchModel) Init() tea.Cmd {
	return watchTick()
}

func watchTick() tea.Cmd {
	return tea.Tick(watchRefresh, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			cam := m.cam
			return m, func() tea.Msg {
				if err := cam.Stop(); err != nil {
					return watchRestartMsg{err: err}
				}
				return watchRestartMsg{err: cam.Start()}
			}
		}
		return m, nil

	case watchTickMsg:
		m.stats = m.cam.Stats()
		frames := m.consumed.Load()
		m.fps = frames - m.frames
		m.frames = frames
		return m, watchTick()

	case watchRestartMsg:
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m watchModel) View() string {
	if m.width == 0 {
		return "Loading…"
	}

	var sb strings.Builder
	sb.WriteString(watchTitleStyle.Render("  oveye capture  "))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")

	session := m.stats.Session
	if session == "" {
		session = "(stopped)"
	}
	rows := []struct {
		label string
		value string
	}{
		{"Session", session},
		{"Mode", m.stats.Mode.String()},
		{"Uptime", m.stats.Uptime.Truncate(time.Second).String()},
		{"Frames", fmt.Sprintf("%d", m.frames)},
		{"FPS", fmt.Sprintf("%d", m.fps)},
		{"Dropped", fmt.Sprintf("%d", m.stats.Pipeline.DroppedFrames)},
		{"Discarded", fmt.Sprintf("%d", m.stats.Pipeline.DiscardedUnits)},
		{"Short frames", fmt.Sprintf("%d", m.stats.Pipeline.ShortFrames)},
		{"Payload", fmtBytes(m.stats.Pipeline.PayloadBytes)},
		{"Queued", fmt.Sprintf("%d", m.stats.Pipeline.Queued)},
	}
	for _, row := range rows {
		sb.WriteString(watchLabelStyle.Render(row.label))
		sb.WriteString(watchValueStyle.Render(row.value))
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(watchErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else {
		sb.WriteString(watchStatusStyle.Render("q: quit  r: restart stream"))
	}
	return sb.String()
}

// fmtBytes renders a byte count with a binary unit suffix.
func fmtBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
