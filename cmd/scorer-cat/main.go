// Command scorer-cat reads frames from a ZeroMQ frame stream and logs their
// metadata. It can also record the stream and serve a live preview.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/scorer/internal/certs"
	"github.com/zsiec/scorer/internal/config"
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
		slog.Error("scorer-cat failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML config file")
	endpoint := flag.String("endpoint", "", "endpoint to read from (overrides config)")
	bind := flag.Bool("bind", false, "bind the endpoint instead of connecting")
	timeout := flag.Duration("timeout", 0, "poll timeout (overrides config); 0 polls without waiting")
	nonBlocking := flag.Bool("nonblocking", false, "poll without waiting")
	previewAddr := flag.String("preview", "", "serve a preview on this address (overrides config)")
	previewTLS := flag.Bool("preview-tls", false, "serve the preview over HTTPS with a self-signed certificate")
	recordPath := flag.String("record", "", "record frames to this file (overrides config)")
	count := flag.Int("n", 0, "stop after this many frames (0 reads forever)")
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
			cfg.Reader.Endpoint = *endpoint
		case "bind":
			cfg.Reader.Bind = *bind
		case "timeout":
			cfg.Reader.SetTimeout(*timeout)
		case "nonblocking":
			cfg.Reader.NonBlocking = *nonBlocking
		case "preview":
			cfg.Preview.Addr = *previewAddr
		case "preview-tls":
			cfg.Preview.TLS = *previewTLS
		case "record":
			cfg.Record.Path = *recordPath
		}
	})

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
	rc := cfg.Reader.StreamReader()
	rc.Metrics = metrics.New(nil)
	r, err := sctx.NewReader(rc)
	if err != nil {
		return err
	}

	var rec *record.Writer
	if cfg.Record.Path != "" {
		f, err := os.Create(cfg.Record.Path)
		if err != nil {
			return fmt.Errorf("create recording: %w", err)
		}
		defer f.Close()
		if rec, err = record.NewWriter(f); err != nil {
			return err
		}
		defer func() {
			if err := rec.Flush(); err != nil {
				slog.Error("flushing recording", "error", err)
			}
			slog.Info("recording written", "path", cfg.Record.Path, "frames", rec.Frames())
		}()
	}

	var pv *preview.Server
	if cfg.Preview.Addr != "" {
		pc := preview.Config{
			Addr:    cfg.Preview.Addr,
			Quality: cfg.Preview.Quality,
			Stats:   func() any { return r.Stats() },
		}
		if cfg.Preview.TLS {
			cert, err := certs.Generate(nil, 0)
			if err != nil {
				return err
			}
			slog.Info("preview certificate generated",
				"fingerprint", cert.FingerprintHex(),
				"expires", cert.NotAfter.Format(time.RFC3339),
			)
			pc.TLS = cert.TLSConfig()
		}
		pv = preview.NewServer(pc)
		g.Go(func() error {
			return pv.Start(ctx)
		})
	}

	slog.Info("scorer-cat starting",
		"version", version,
		"endpoint", rc.Endpoint,
		"bind", rc.Bind,
		"preview", cfg.Preview.Addr,
		"record", cfg.Record.Path,
	)

	g.Go(func() error {
		<-ctx.Done()
		if err := sctx.Close(); err != nil && !errors.Is(err, stream.ErrClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		return readLoop(r, rec, pv, *count)
	})

	err = g.Wait()
	st := r.Stats()
	slog.Info("scorer-cat stopped",
		"frames", st.Frames,
		"no_data", st.NoData,
		"decode_errors", st.DecodeErrors,
		"transport_errors", st.TransportErrors,
	)
	if perf := r.PerfCounters(); len(perf) > 0 {
		slog.Info("poll latency", "samples", len(perf), "mean", mean(perf))
	}
	return err
}

func readLoop(r *stream.Reader, rec *record.Writer, pv *preview.Server, limit int) error {
	for n := 0; limit == 0 || n < limit; {
		f, _, err := r.Read()
		switch {
		case errors.Is(err, stream.ErrClosed):
			return nil
		case errors.Is(err, stream.ErrNoData):
			continue
		case err != nil:
			slog.Warn("skipping frame", "error", err)
			continue
		}
		n++

		w, h := f.PictureSize()
		slog.Info("frame",
			"n", n,
			"time", f.Datetime().Format(time.RFC3339),
			"msec", f.Msec(),
			"type", f.FrameType,
			"format", f.Format,
			"width", w,
			"height", h,
			"version", f.Version,
		)

		if rec != nil {
			if err := rec.Write(f); err != nil {
				return err
			}
		}
		if pv != nil {
			if err := pv.Publish(f); err != nil {
				slog.Warn("preview publish failed", "error", err)
			}
		}
	}
	return nil
}

func mean(d []time.Duration) time.Duration {
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}
