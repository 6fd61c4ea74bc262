package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	toml "github.com/pelletier/go-toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"
	yaml "gopkg.in/yaml.v3"

	"github.com/oveye/oveye/camera"
	"github.com/oveye/oveye/internal/log"
	"github.com/oveye/oveye/internal/watchfile"
	"github.com/oveye/oveye/stream"
	"github.com/oveye/oveye/usbdev"
)

type Capture struct {
	Device      int           `help:"Camera index from the devices list" default:"0" env:"OVEYE_DEVICE"`
	Width       int           `help:"Frame width" default:"640" env:"OVEYE_WIDTH"`
	Height      int           `help:"Frame height" default:"480" env:"OVEYE_HEIGHT"`
	FPS         int           `help:"Frame rate" default:"60" env:"OVEYE_FPS"`
	Output      string        `help:"Write raw frames to this file, '-' for stdout" env:"OVEYE_OUTPUT"`
	Frames      int           `help:"Stop after this many frames (0 = unlimited)"`
	Duration    time.Duration `help:"Stop after this long (0 = unlimited)"`
	Controls    string        `help:"Image controls file (json/yaml/toml), reloaded live on change" type:"path"`
	QueueDepth  int           `help:"Frame queue slots" default:"4"`
	Transfers   int           `help:"Concurrent USB transfers" default:"8"`
	MetricsAddr string        `help:"Serve Prometheus metrics on this address" placeholder:"HOST:PORT" env:"OVEYE_METRICS_ADDR"`
}

// Run is called by Kong when the capture command is executed.
func (c *Capture) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	usb := usbdev.NewContext(logger, rawLogger)
	defer usb.Close()

	dev, err := usb.OpenIndex(c.Device)
	if err != nil {
		return err
	}

	controls := camera.DefaultControls()
	if c.Controls != "" {
		if controls, err = loadControls(c.Controls); err != nil {
			_ = dev.Close()
			return fmt.Errorf("load controls: %w", err)
		}
	}

	var metrics *stream.Metrics
	if c.MetricsAddr != "" {
		metrics = stream.NewMetrics(prometheus.DefaultRegisterer)
	}

	events := camera.NewBus()
	camera.Subscribe(events, func(e camera.FramesDroppedEvent) {
		logger.Warn("frames dropped", "count", e.Count, "total", e.Total)
	})

	cam := camera.New(dev, camera.Options{
		Mode:       camera.Mode{Width: c.Width, Height: c.Height, FPS: c.FPS},
		Controls:   &controls,
		QueueDepth: c.QueueDepth,
		Transfers:  c.Transfers,
		Logger:     logger,
		Metrics:    metrics,
		Events:     events,
	})
	defer cam.Close()

	if err := cam.Init(); err != nil {
		return err
	}
	if err := cam.Start(); err != nil {
		return err
	}

	if c.Controls != "" {
		watcher := watchfile.New(c.Controls, loadControls, logger)
		watcher.OnReload(func(next camera.Controls) {
			if err := cam.ApplyControls(next); err != nil {
				logger.Warn("apply controls failed", "error", err)
			}
		})
		if err := watcher.Start(); err != nil {
			logger.Warn("controls watch unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if c.MetricsAddr != "" {
		srv := &http.Server{Addr: c.MetricsAddr, Handler: promhttp.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("metrics listening", "addr", c.MetricsAddr)
	}

	out, closeOut, err := c.openOutput()
	if err != nil {
		return err
	}

	var written atomic.Uint64
	readErr := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			frame, err := cam.ReadFrame()
			if err != nil {
				if !errors.Is(err, camera.ErrNotStreaming) && !errors.Is(err, stream.ErrClosed) {
					readErr <- err
				}
				return
			}
			if out != nil {
				if _, err := out.Write(frame.Data); err != nil {
					readErr <- fmt.Errorf("write frame: %w", err)
					return
				}
			}
			if n := written.Add(1); c.Frames > 0 && n >= uint64(c.Frames) {
				return
			}
		}
	}()

	statusDone := c.startStatusLine(ctx, cam, &written)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-readErr:
	case <-done:
	}
	stop()
	_ = cam.Stop()
	<-done
	if statusDone != nil {
		<-statusDone
	}

	if closeOut != nil {
		if err := closeOut(); err != nil && runErr == nil {
			runErr = err
		}
	}
	logger.Info("capture finished", "frames", written.Load())
	return runErr
}

// openOutput resolves the frame sink: stdout, a file, or none (stats only).
func (c *Capture) openOutput() (io.Writer, func() error, error) {
	switch c.Output {
	case "":
		return nil, nil, nil
	case "-":
		w := bufio.NewWriterSize(os.Stdout, 1<<20)
		return w, w.Flush, nil
	default:
		f, err := os.Create(c.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("open output: %w", err)
		}
		w := bufio.NewWriterSize(f, 1<<20)
		closer := func() error {
			if err := w.Flush(); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		}
		return w, closer, nil
	}
}

// startStatusLine redraws a one-line capture summary on stderr once a
// second. Skipped when stderr is not a terminal.
func (c *Capture) startStatusLine(ctx context.Context, cam *camera.Camera, written *atomic.Uint64) <-chan struct{} {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var prev uint64
		for {
			select {
			case <-ctx.Done():
				fmt.Fprint(os.Stderr, "\n")
				return
			case <-ticker.C:
				stats := cam.Stats()
				n := written.Load()
				fmt.Fprintf(os.Stderr, "\r%s  frames %d  fps %3d  dropped %d  queued %d   ",
					stats.Mode, n, n-prev, stats.Pipeline.DroppedFrames, stats.Pipeline.Queued)
				prev = n
			}
		}
	}()
	return done
}

// loadControls reads an image controls file, routed to the decoder by
// extension. Unset fields keep the hardware defaults.
func loadControls(path string) (camera.Controls, error) {
	controls := camera.DefaultControls()
	data, err := os.ReadFile(path)
	if err != nil {
		return controls, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &controls)
	case ".toml":
		err = toml.Unmarshal(data, &controls)
	default:
		err = yaml.Unmarshal(data, &controls)
	}
	if err != nil {
		return camera.DefaultControls(), err
	}
	return controls, nil
}
