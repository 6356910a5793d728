package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/headtrack/internal/frame"
	"github.com/ayusman/headtrack/internal/lifecycle"
	"github.com/ayusman/headtrack/internal/pose"
)

// fakePose is a PoseSource whose samples are pushed by the test.
type fakePose struct {
	mu   sync.Mutex
	cur  pose.Sample
	subs map[int]func(pose.Sample)
	next int
}

func newFakePose() *fakePose {
	return &fakePose{subs: make(map[int]func(pose.Sample))}
}

func (f *fakePose) Pose() pose.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakePose) Subscribe(fn func(pose.Sample)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakePose) publish(s pose.Sample) {
	f.mu.Lock()
	f.cur = s
	subs := make([]func(pose.Sample), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (f *fakePose) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeStatus struct{}

func (fakeStatus) State() lifecycle.State         { return lifecycle.Resumed }
func (fakeStatus) CameraPermissionsGranted() bool { return true }
func (fakeStatus) CameraBusy() bool               { return true }
func (fakeStatus) RecordingSession() string       { return "session-1" }
func (fakeStatus) FrameStats() frame.Stats {
	return frame.Stats{Notifications: 10, Delivered: 7, Coalesced: 3, Refreshes: 12, HasFrame: true}
}

type fakePreview struct {
	jpeg []byte
	ts   time.Time
}

func (p fakePreview) Preview() ([]byte, time.Time, bool) {
	return p.jpeg, p.ts, p.jpeg != nil
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	// Create a temporary directory with a static file
	tmpDir, err := os.MkdirTemp("", "headtrack-server-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Create a test HTML file
	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	// Create a CSS file for testing direct file access
	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_NoStaticDir(t *testing.T) {
	s := New(Config{})

	t.Run("root path returns 404 when no static dir configured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}

		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})
}

func TestServer_Pose(t *testing.T) {
	src := newFakePose()
	s := New(Config{Pose: src})
	defer s.Close()

	src.publish(pose.Sample{Turn: 12.5, Tilt: -3, Nod: 4, Seq: 9})

	req := httptest.NewRequest(http.MethodGet, "/api/pose", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got pose.Sample
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Turn != 12.5 || got.Tilt != -3 || got.Nod != 4 || got.Seq != 9 {
		t.Errorf("unexpected pose %+v", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/pose", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestServer_Status(t *testing.T) {
	s := New(Config{Status: fakeStatus{}})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got struct {
		State            string            `json:"state"`
		CameraPermission bool              `json:"cameraPermission"`
		CameraBusy       bool              `json:"cameraBusy"`
		RecordingSession string            `json:"recordingSession"`
		HasFrame         bool              `json:"hasFrame"`
		Frames           map[string]uint64 `json:"frames"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.State != "resumed" || !got.CameraPermission {
		t.Errorf("unexpected status %+v", got)
	}
	if !got.CameraBusy || got.RecordingSession != "session-1" || !got.HasFrame {
		t.Errorf("unexpected camera status %+v", got)
	}
	if got.Frames["delivered"] != 7 || got.Frames["coalesced"] != 3 || got.Frames["refreshes"] != 12 {
		t.Errorf("unexpected frame stats %v", got.Frames)
	}
}

func TestServer_OptionalRoutes(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/pose", "/api/pose/ws", "/api/status", "/api/stream", "/api/sessions/x"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_CloseUnsubscribes(t *testing.T) {
	src := newFakePose()
	s := New(Config{Pose: src})

	if src.subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", src.subscribers())
	}
	s.Close()
	s.Close()
	if src.subscribers() != 0 {
		t.Errorf("subscribers after Close = %d, want 0", src.subscribers())
	}
}

func TestServer_Metrics(t *testing.T) {
	called := false
	s := New(Config{Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if !called {
		t.Error("expected metrics handler to be called")
	}
}
