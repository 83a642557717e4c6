// Package config loads the settings shared by the scorer command-line
// tools from a YAML file, .env files and SCORER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zsiec/scorer/media"
	"github.com/zsiec/scorer/stream"
)

// Config is the complete tool configuration.
type Config struct {
	Reader  ReaderConfig  `yaml:"reader"`
	Writer  WriterConfig  `yaml:"writer"`
	Preview PreviewConfig `yaml:"preview"`
	Record  RecordConfig  `yaml:"record"`
}

// ReaderConfig configures the consuming side.
type ReaderConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Bind        bool   `yaml:"bind"`
	NonBlocking bool   `yaml:"non_blocking"`
	// TimeoutMS of zero selects stream.DefaultTimeout. Use NonBlocking, or
	// SetTimeout(0), for a read that does not wait.
	TimeoutMS   int    `yaml:"timeout_ms"`
	PerfCount   bool   `yaml:"perf_count"`
}

// SetTimeout sets the poll timeout from a duration given by the user. Zero
// means a single poll without waiting rather than the default timeout. A
// positive duration leaves NonBlocking as it was.
func (c *ReaderConfig) SetTimeout(d time.Duration) {
	if d <= 0 {
		c.NonBlocking = true
		c.TimeoutMS = 0
		return
	}
	c.TimeoutMS = max(int(d/time.Millisecond), 1)
}

// WriterConfig configures the producing side and the test pattern it sends.
type WriterConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Connect       bool   `yaml:"connect"`
	SendTimeoutMS int    `yaml:"send_timeout_ms"`
	PerfCount     bool   `yaml:"perf_count"`
	FPS           int    `yaml:"fps"`
	Format        string `yaml:"format"` // I420, BGR, RGB or RGBA
	Rows          int    `yaml:"rows"`
	Cols          int    `yaml:"cols"`
}

// PreviewConfig configures the HTTP preview server. An empty Addr disables it.
type PreviewConfig struct {
	Addr    string `yaml:"addr"`
	Quality int    `yaml:"quality"`
	TLS     bool   `yaml:"tls"` // serve HTTPS with a self-signed certificate
}

// RecordConfig names the recording file. An empty Path disables recording.
type RecordConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{
			Endpoint:  "tcp://127.0.0.1:5555",
			TimeoutMS: int(stream.DefaultTimeout / time.Millisecond),
		},
		Writer: WriterConfig{
			Endpoint: "tcp://*:5555",
			FPS:      30,
			Format:   media.BGR.String(),
			Rows:     480,
			Cols:     640,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads each .env file that exists into the process
// environment. Variables already set are left alone.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from SCORER_* environment variables.
func (cfg *Config) ApplyEnv() error {
	cfg.Reader.Endpoint = envOr("SCORER_READER_ENDPOINT", cfg.Reader.Endpoint)
	cfg.Writer.Endpoint = envOr("SCORER_WRITER_ENDPOINT", cfg.Writer.Endpoint)
	cfg.Writer.Format = envOr("SCORER_FORMAT", cfg.Writer.Format)
	cfg.Preview.Addr = envOr("SCORER_PREVIEW_ADDR", cfg.Preview.Addr)
	cfg.Record.Path = envOr("SCORER_RECORD_PATH", cfg.Record.Path)

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"SCORER_TIMEOUT_MS", &cfg.Reader.TimeoutMS},
		{"SCORER_FPS", &cfg.Writer.FPS},
		{"SCORER_ROWS", &cfg.Writer.Rows},
		{"SCORER_COLS", &cfg.Writer.Cols},
	} {
		s := os.Getenv(v.key)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%s: %w", v.key, err)
		}
		*v.dst = n
	}
	return cfg.Validate()
}

// Validate checks that the configuration can be used.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Reader.Endpoint == "" {
		errs = append(errs, errors.New("reader.endpoint is required"))
	}
	if cfg.Reader.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("reader.timeout_ms must not be negative, got %d", cfg.Reader.TimeoutMS))
	}
	if cfg.Writer.Endpoint == "" {
		errs = append(errs, errors.New("writer.endpoint is required"))
	}
	if _, err := media.ParsePixelFormat(cfg.Writer.Format); err != nil {
		errs = append(errs, fmt.Errorf("writer.format: %w", err))
	}
	if cfg.Writer.FPS <= 0 {
		errs = append(errs, fmt.Errorf("writer.fps must be positive, got %d", cfg.Writer.FPS))
	}
	if cfg.Writer.Rows < 0 || cfg.Writer.Cols < 0 {
		errs = append(errs, fmt.Errorf("writer size %dx%d is negative", cfg.Writer.Cols, cfg.Writer.Rows))
	}
	if q := cfg.Preview.Quality; q < 0 || q > 100 {
		errs = append(errs, fmt.Errorf("preview.quality must be within 0-100, got %d", q))
	}
	return errors.Join(errs...)
}

// StreamReader converts the reader settings to a stream.ReaderConfig.
func (c ReaderConfig) StreamReader() stream.ReaderConfig {
	return stream.ReaderConfig{
		Endpoint:    c.Endpoint,
		Bind:        c.Bind,
		NonBlocking: c.NonBlocking,
		Timeout:     time.Duration(c.TimeoutMS) * time.Millisecond,
		PerfCount:   c.PerfCount,
	}
}

// StreamWriter converts the writer settings to a stream.WriterConfig.
func (c WriterConfig) StreamWriter() stream.WriterConfig {
	return stream.WriterConfig{
		Endpoint:    c.Endpoint,
		Connect:     c.Connect,
		SendTimeout: time.Duration(c.SendTimeoutMS) * time.Millisecond,
		PerfCount:   c.PerfCount,
	}
}

// PixelFormat returns the parsed writer format. Validate guarantees it
// parses.
func (c WriterConfig) PixelFormat() media.PixelFormat {
	f, _ := media.ParsePixelFormat(c.Format)
	return f
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
