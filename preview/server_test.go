package preview

import (
	"bytes"
	"context"
	"crypto/tls"
	"image/jpeg"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zsiec/scorer/internal/certs"
	"github.com/zsiec/scorer/media"
	"github.com/zsiec/scorer/metrics"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg)
}

func testFrame(t *testing.T, ts int64, rows, cols int) *media.Frame {
	t.Helper()
	data := make([]byte, rows*cols*3)
	for i := 0; i < len(data); i += 3 {
		data[i+2] = 0xff // red in BGR order
	}
	f, err := media.NewFrame(media.Metadata{Version: "1.0", Timestamp: ts}, media.BGR, rows, cols, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestSnapshotBeforePublish(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/snapshot.jpg", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestSnapshotServesLatestFrame(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{})
	if err := srv.Publish(testFrame(t, 1, 8, 8)); err != nil {
		t.Fatal(err)
	}
	if err := srv.Publish(testFrame(t, 2, 12, 16)); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/snapshot.jpg", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("Content-Type = %q, want image/jpeg", ct)
	}
	img, err := jpeg.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 12 {
		t.Fatalf("snapshot size = %dx%d, want 16x12", b.Dx(), b.Dy())
	}
	r, g, _, _ := img.At(8, 6).RGBA()
	if r>>8 < 200 || g>>8 > 60 {
		t.Fatalf("snapshot pixel r=%d g=%d, want red", r>>8, g>>8)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{
		Stats: func() any { return map[string]int{"readers": 1} },
	})
	if err := srv.Publish(testFrame(t, 1_500_000, 4, 6)); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var got struct {
		Published int64     `json:"published"`
		Last      FrameInfo `json:"last"`
		Extra     struct {
			Readers int `json:"readers"`
		} `json:"extra"`
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Published != 1 {
		t.Errorf("published = %d, want 1", got.Published)
	}
	want := FrameInfo{Version: "1.0", Timestamp: 1_500_000, Format: "BGR", Width: 6, Height: 4, Bytes: 72}
	if got.Last != want {
		t.Errorf("last = %+v, want %+v", got.Last, want)
	}
	if got.Extra.Readers != 1 {
		t.Errorf("extra.readers = %d, want 1", got.Extra.Readers)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.FrameRead("BGR", 100)

	srv := newTestServer(t, Config{Gatherer: reg})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); !strings.Contains(body, `scorer_frames_read_total{format="BGR"} 1`) {
		t.Fatalf("metrics body missing frame counter:\n%s", body)
	}
}

func TestWebSocketPushesFrames(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{})
	if err := srv.Publish(testFrame(t, 1, 4, 4)); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// The latest frame is sent on connect.
	readJPEG(t, conn, 4, 4)

	if err := srv.Publish(testFrame(t, 2, 8, 10)); err != nil {
		t.Fatal(err)
	}
	readJPEG(t, conn, 10, 8)

	if n := srv.Snapshot().Viewers; n != 1 {
		t.Fatalf("viewers = %d, want 1", n)
	}
}

func readJPEG(t *testing.T, conn *websocket.Conn, w, h int) {
	t.Helper()
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", kind)
	}
	img, err := jpeg.Decode(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		t.Fatalf("frame size = %dx%d, want %dx%d", b.Dx(), b.Dy(), w, h)
	}
}

func TestViewerOfferKeepsNewest(t *testing.T) {
	t.Parallel()

	v := &viewer{frames: make(chan []byte, 1)}
	v.offer([]byte("a"))
	v.offer([]byte("b"))
	v.offer([]byte("c"))

	if got := string(<-v.frames); got != "c" {
		t.Fatalf("pending frame = %q, want c", got)
	}
	select {
	case b := <-v.frames:
		t.Fatalf("unexpected extra frame %q", b)
	default:
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

func TestStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	srv := newTestServer(t, Config{Addr: addr})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/stats")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Start returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStartTLS(t *testing.T) {
	t.Parallel()

	cert, err := certs.Generate(nil, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	addr := freeAddr(t)
	srv := newTestServer(t, Config{Addr: addr, TLS: cert.TLSConfig()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Start(ctx)

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := client.Get("https://" + addr + "/stats")
		if err == nil {
			resp.Body.Close()
			if resp.TLS == nil {
				t.Fatal("response was not served over TLS")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("TLS server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
