// Command scorer-push sends a scrolling colour-bar pattern, or replays a
// recording made by scorer-cat, to a ZeroMQ frame stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/scorer/internal/config"
	"github.com/zsiec/scorer/internal/testpattern"
	"github.com/zsiec/scorer/media"
	"github.com/zsiec/scorer/metrics"
	"github.com/zsiec/scorer/preview"
	"github.com/zsiec/scorer/record"
	"github.com/zsiec/scorer/stream"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(); err != nil {
		slog.Error("scorer-push failed", "error", err)
		os.Exit(1)
	}
}

type source interface {
	next(n int) (*media.Frame, error)
}

func run() error {
	configPath := flag.String("config", "", "YAML config file")
	endpoint := flag.String("endpoint", "", "endpoint to write to (overrides config)")
	connect := flag.Bool("connect", false, "connect to the endpoint instead of binding it")
	format := flag.String("format", "", "pixel format: I420, BGR, RGB or RGBA (overrides config)")
	rows := flag.Int("rows", 0, "picture height (overrides config)")
	cols := flag.Int("cols", 0, "picture width (overrides config)")
	fps := flag.Int("fps", 0, "frames per second (overrides config)")
	replay := flag.String("replay", "", "replay this recording instead of the test pattern")
	previewAddr := flag.String("preview", "", "serve a preview of sent frames on this address (overrides config)")
	count := flag.Int("n", 0, "stop after this many frames (0 sends forever)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Writer.Endpoint = *endpoint
		case "connect":
			cfg.Writer.Connect = *connect
		case "format":
			cfg.Writer.Format = *format
		case "rows":
			cfg.Writer.Rows = *rows
		case "cols":
			cfg.Writer.Cols = *cols
		case "fps":
			cfg.Writer.FPS = *fps
		case "preview":
			cfg.Preview.Addr = *previewAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	var src source
	if *replay != "" {
		f, err := os.Open(*replay)
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		defer f.Close()
		rr, err := record.NewReader(f, nil)
		if err != nil {
			return err
		}
		src = replaySource{rr}
	} else {
		src = patternSource{
			format: cfg.Writer.PixelFormat(),
			rows:   cfg.Writer.Rows,
			cols:   cfg.Writer.Cols,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	sctx := stream.NewContext(ctx, nil)
	wc := cfg.Writer.StreamWriter()
	wc.Metrics = metrics.New(nil)
	w, err := sctx.NewWriter(wc)
	if err != nil {
		return err
	}

	var pv *preview.Server
	if cfg.Preview.Addr != "" {
		pv = preview.NewServer(preview.Config{
			Addr:    cfg.Preview.Addr,
			Quality: cfg.Preview.Quality,
			Stats:   func() any { return w.Stats() },
		})
		g.Go(func() error {
			return pv.Start(ctx)
		})
	}

	slog.Info("scorer-push starting",
		"version", version,
		"endpoint", wc.Endpoint,
		"connect", wc.Connect,
		"fps", cfg.Writer.FPS,
		"replay", *replay,
	)

	// Closing the context unblocks a write stuck on back-pressure.
	g.Go(func() error {
		<-ctx.Done()
		if err := sctx.Close(); err != nil && !errors.Is(err, stream.ErrClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		return pushLoop(ctx, w, src, pv, cfg.Writer.FPS, *count)
	})

	err = g.Wait()
	st := w.Stats()
	slog.Info("scorer-push stopped", "frames", st.Frames, "bytes", st.Bytes, "send_errors", st.SendErrors)
	return err
}

func pushLoop(ctx context.Context, w *stream.Writer, src source, pv *preview.Server, fps, limit int) error {
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for n := 0; limit == 0 || n < limit; n++ {
		f, err := src.next(n)
		if errors.Is(err, io.EOF) {
			slog.Info("recording finished", "frames", n)
			return nil
		}
		if err != nil {
			return err
		}

		if err := w.WriteFrame(f); err != nil {
			if errors.Is(err, stream.ErrClosed) {
				return nil
			}
			return err
		}
		slog.Debug("frame sent", "n", n, "timestamp", f.Timestamp)

		if pv != nil {
			if err := pv.Publish(f); err != nil {
				slog.Warn("preview publish failed", "error", err)
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

type patternSource struct {
	format     media.PixelFormat
	rows, cols int
}

func (p patternSource) next(n int) (*media.Frame, error) {
	img, err := testpattern.Generate(p.format, p.rows, p.cols, n)
	if err != nil {
		return nil, err
	}
	meta := media.Metadata{
		Version:   media.DefaultVersion,
		Timestamp: time.Now().UnixMicro(),
	}
	return media.NewFrame(meta, img.Format, img.Rows, img.Cols, img.Data, nil)
}

type replaySource struct {
	r *record.Reader
}

func (s replaySource) next(int) (*media.Frame, error) {
	return s.r.Next()
}
