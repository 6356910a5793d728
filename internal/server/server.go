// Package server provides the HTTP interface of the headtrack service.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/headtrack/internal/frame"
	"github.com/ayusman/headtrack/internal/lifecycle"
	"github.com/ayusman/headtrack/internal/pose"
	"github.com/ayusman/headtrack/internal/store"
)

// PoseSource provides the latest head pose and a feed of new samples.
type PoseSource interface {
	Pose() pose.Sample
	Subscribe(fn func(pose.Sample)) (cancel func())
}

// PreviewSource provides the latest preview frame as JPEG.
type PreviewSource interface {
	Preview() (jpeg []byte, timestamp time.Time, ok bool)
}

// StatusSource reports the state of the capture pipeline.
type StatusSource interface {
	State() lifecycle.State
	CameraPermissionsGranted() bool
	CameraBusy() bool
	RecordingSession() string
	FrameStats() frame.Stats
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Pose      PoseSource
	Preview   PreviewSource
	Status    StatusSource

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server represents the HTTP server for the headtrack service.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	poseWS *PoseHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Pose != nil {
		s.mux.HandleFunc("/api/pose", s.handlePose)
		s.poseWS = NewPoseHandler(s.config.Pose)
		s.mux.Handle("/api/pose/ws", s.poseWS)
	}

	if s.config.Status != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics)
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Preview))
	}

	if s.config.Store != nil {
		sessions := NewSessionsHandler(s.config.Store.Recordings())
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops the pose broadcast and disconnects websocket clients.
func (s *Server) Close() {
	if s.poseWS != nil {
		s.poseWS.Close()
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handlePose handles GET requests to /api/pose.
func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.config.Pose.Pose())
}

// handleStatus handles GET requests to /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.config.Status.FrameStats()
	writeJSON(w, map[string]interface{}{
		"state":            s.config.Status.State().String(),
		"cameraPermission": s.config.Status.CameraPermissionsGranted(),
		"cameraBusy":       s.config.Status.CameraBusy(),
		"recordingSession": s.config.Status.RecordingSession(),
		"hasFrame":         stats.HasFrame,
		"frames": map[string]uint64{
			"notifications": stats.Notifications,
			"delivered":     stats.Delivered,
			"coalesced":     stats.Coalesced,
			"failed":        stats.Failed,
			"refreshes":     stats.Refreshes,
		},
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
