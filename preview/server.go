// Package preview serves the most recent frame of a stream over HTTP for
// eyeballing a feed: a JPEG snapshot, a websocket JPEG push and JSON stats,
// next to the Prometheus metrics endpoint.
package preview

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/scorer/media"
)

// DefaultQuality is the JPEG quality used when Config.Quality is zero.
const DefaultQuality = 80

// writeWait bounds a single websocket write so a stalled viewer cannot
// hold its goroutine forever.
const writeWait = 5 * time.Second

// StatsFunc supplies extra data for the /stats endpoint, typically reader
// and writer stats snapshots.
type StatsFunc func() any

// Config configures a Server.
type Config struct {
	Addr    string
	Quality int

	// Stats, when set, is embedded in /stats responses under "extra".
	Stats StatsFunc

	// Gatherer backs /metrics. Nil uses the default Prometheus gatherer.
	Gatherer prometheus.Gatherer

	// TLS, when set, makes Start serve HTTPS.
	TLS *tls.Config

	Logger *slog.Logger
}

// FrameInfo describes the last published frame.
type FrameInfo struct {
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
	FrameType int16  `json:"frameType"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
}

// Snapshot is the JSON body of /stats.
type Snapshot struct {
	Published int64      `json:"published"`
	Viewers   int        `json:"viewers"`
	Last      *FrameInfo `json:"last,omitempty"`
	Extra     any        `json:"extra,omitempty"`
}

// viewer is one websocket client. frames holds at most the newest JPEG.
type viewer struct {
	id     string
	frames chan []byte
}

// offer replaces whatever the viewer has not sent yet with b.
func (v *viewer) offer(b []byte) {
	select {
	case v.frames <- b:
		return
	default:
	}
	select {
	case <-v.frames:
	default:
	}
	select {
	case v.frames <- b:
	default:
	}
}

// Server keeps the latest published frame encoded as JPEG and fans it out
// to websocket viewers. Slow viewers skip frames rather than queue them.
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	latest    []byte
	last      *FrameInfo
	published int64
	viewers   map[string]*viewer

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a Server. Nothing is served until Handler is mounted
// or Start is called.
func NewServer(cfg Config) *Server {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultQuality
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg: cfg,
		log: log.With("component", "preview"),
		upgrader: websocket.Upgrader{
			// Preview is a local debugging aid; any origin may watch.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		viewers: make(map[string]*viewer),
		closing: make(chan struct{}),
	}
}

// Publish encodes f as the new latest frame and pushes it to every viewer.
func (s *Server) Publish(f *media.Frame) error {
	img, err := f.Image()
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.cfg.Quality}); err != nil {
		return fmt.Errorf("preview: encode jpeg: %w", err)
	}
	b := buf.Bytes()
	w, h := f.PictureSize()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = b
	s.last = &FrameInfo{
		Version:   f.Version,
		Timestamp: f.Timestamp,
		FrameType: f.FrameType,
		Format:    f.Format.String(),
		Width:     w,
		Height:    h,
		Bytes:     len(f.Data),
	}
	s.published++
	for _, v := range s.viewers {
		v.offer(b)
	}
	return nil
}

// Snapshot returns the current /stats body.
func (s *Server) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Published: s.published,
		Viewers:   len(s.viewers),
	}
	if s.last != nil {
		last := *s.last
		snap.Last = &last
	}
	s.mu.RUnlock()

	if s.cfg.Stats != nil {
		snap.Extra = s.cfg.Stats()
	}
	return snap
}

// Handler returns the preview routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /snapshot.jpg", s.handleSnapshot)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	return corsMiddleware(mux)
}

// Start serves Handler on cfg.Addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		TLSConfig:         s.cfg.TLS,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		s.closeOnce.Do(func() { close(s.closing) })
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	var err error
	if s.cfg.TLS != nil {
		s.log.Info("preview server listening", "addr", s.cfg.Addr, "tls", true)
		err = srv.ListenAndServeTLS("", "")
	} else {
		s.log.Info("preview server listening", "addr", s.cfg.Addr)
		err = srv.ListenAndServe()
	}
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("preview server: %w", err)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	b := s.latest
	s.mu.RUnlock()

	if b == nil {
		writeError(w, http.StatusNotFound, "no frame published yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(b)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	v := &viewer{id: uuid.NewString(), frames: make(chan []byte, 1)}
	s.addViewer(v)
	defer s.removeViewer(v.id)

	// Viewers never send anything meaningful; reading only detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case b := <-v.frames:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
				s.log.Debug("viewer write failed", "viewer", v.id, "error", err)
				return
			}
		case <-gone:
			return
		case <-s.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// addViewer registers v and hands it the latest frame, under the same lock
// Publish takes so no frame falls between the two.
func (s *Server) addViewer(v *viewer) {
	s.mu.Lock()
	s.viewers[v.id] = v
	if s.latest != nil {
		v.offer(s.latest)
	}
	n := len(s.viewers)
	s.mu.Unlock()
	s.log.Info("viewer connected", "viewer", v.id, "viewers", n)
}

func (s *Server) removeViewer(id string) {
	s.mu.Lock()
	delete(s.viewers, id)
	n := len(s.viewers)
	s.mu.Unlock()
	s.log.Info("viewer disconnected", "viewer", id, "viewers", n)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
