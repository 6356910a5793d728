package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/headtrack/internal/store"
)

// SessionsHandler serves recorded sessions:
//
//	GET /api/sessions
//	GET /api/sessions/{id}
//	GET /api/sessions/{id}/samples
type SessionsHandler struct {
	repo *store.RecordingRepository
}

// NewSessionsHandler creates a new SessionsHandler over repo.
func NewSessionsHandler(repo *store.RecordingRepository) *SessionsHandler {
	return &SessionsHandler{repo: repo}
}

type sessionResponse struct {
	ID          string     `json:"id"`
	Graph       string     `json:"graph"`
	CameraFront bool       `json:"cameraFront"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	SampleCount *int       `json:"sampleCount,omitempty"`
}

func toSessionResponse(sess *store.Session) sessionResponse {
	return sessionResponse{
		ID:          sess.ID,
		Graph:       sess.Graph,
		CameraFront: sess.CameraFront,
		StartedAt:   sess.StartedAt,
		EndedAt:     sess.EndedAt,
	}
}

type sampleResponse struct {
	Seq         uint64  `json:"seq"`
	Turn        float64 `json:"turn"`
	Tilt        float64 `json:"tilt"`
	Nod         float64 `json:"nod"`
	TimestampMs int64   `json:"timestampMs"`
}

func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions"), "/")
	if rest == "" {
		h.list(w)
		return
	}

	parts := strings.Split(rest, "/")
	if len(parts) > 2 || (len(parts) == 2 && parts[1] != "samples") {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	sess, err := h.repo.GetSession(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}

	if len(parts) == 1 {
		writeJSON(w, toSessionResponse(sess))
		return
	}

	samples, err := h.repo.Samples(id)
	if err != nil {
		http.Error(w, "Failed to load samples", http.StatusInternalServerError)
		return
	}
	out := make([]sampleResponse, 0, len(samples))
	for _, s := range samples {
		out = append(out, sampleResponse{
			Seq:         s.Seq,
			Turn:        s.Turn,
			Tilt:        s.Tilt,
			Nod:         s.Nod,
			TimestampMs: s.TimestampMs,
		})
	}
	writeJSON(w, map[string]interface{}{"samples": out})
}

func (h *SessionsHandler) list(w http.ResponseWriter) {
	sessions, err := h.repo.ListSessions()
	if err != nil {
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp := toSessionResponse(sess)
		count := sess.SampleCount
		resp.SampleCount = &count
		out = append(out, resp)
	}
	writeJSON(w, map[string]interface{}{"sessions": out})
}
