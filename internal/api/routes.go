package api

import (
	"errors"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/channel"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/directory"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/provider"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/session"
)

var log = logging.Logger("api")

// Server holds the HTTP surface's dependencies.
type Server struct {
	sessions *session.Manager
	loader   *provider.Loader
	bridges  *BridgeRegistry
}

// NewServer creates the HTTP surface.
func NewServer(sessions *session.Manager, loader *provider.Loader, bridges *BridgeRegistry) *Server {
	return &Server{sessions: sessions, loader: loader, bridges: bridges}
}

type sessionSummary struct {
	SessionID     string             `json:"sessionId"`
	AppointmentID string             `json:"appointmentId"`
	RoomID        string             `json:"roomId"`
	Role          string             `json:"role"`
	DisplayName   string             `json:"displayName"`
	Video         provider.Status    `json:"video"`
	Chat          channel.State      `json:"chat"`
}

func summarize(s *session.Session) sessionSummary {
	return sessionSummary{
		SessionID:     s.ID,
		AppointmentID: s.AppointmentID,
		RoomID:        s.RoomID,
		Role:          string(s.Role),
		DisplayName:   s.DisplayName,
		Video:         s.VideoStatus(),
		Chat:          s.ChatState(),
	}
}

// Register adds all coordinator endpoints to mux.
func (srv *Server) Register(mux *http.ServeMux) {
	// POST /api/session/join -- run the join pipeline
	handlePost(mux, "/api/session/join", func(w http.ResponseWriter, r *http.Request, req struct {
		AppointmentID string `json:"appointmentId"`
		UserID        string `json:"userId"`
	}) {
		if req.AppointmentID == "" || req.UserID == "" {
			http.Error(w, "missing appointmentId or userId", http.StatusBadRequest)
			return
		}
		s, err := srv.sessions.Join(r.Context(), req.AppointmentID, req.UserID)
		if err != nil {
			srv.writeJoinError(w, err)
			return
		}
		writeJSON(w, summarize(s))
	})

	// GET /api/appointments/{id}/access -- one-shot gate check
	handleGet(mux, "/api/appointments/{id}/access", func(w http.ResponseWriter, r *http.Request) {
		d, err := srv.sessions.CheckAccess(r.Context(), r.PathValue("id"))
		if err != nil {
			srv.writeDirError(w, err)
			return
		}
		writeJSON(w, d)
	})

	// GET /api/appointments/{id}/access/stream -- SSE countdown until the
	// gate opens
	handleGet(mux, "/api/appointments/{id}/access/stream", func(w http.ResponseWriter, r *http.Request) {
		countdown, err := srv.sessions.Countdown(r.Context(), r.PathValue("id"), 30*time.Second)
		if err != nil {
			srv.writeDirError(w, err)
			return
		}
		defer countdown.Stop()

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		sseHeaders(w)

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-countdown.C:
				if !ok {
					return
				}
				sseSend(w, flusher, "access", d)
			}
		}
	})

	// GET /api/session/{id} -- current session summary
	handleGet(mux, "/api/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		s, ok := srv.sessions.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		writeJSON(w, summarize(s))
	})

	// GET /api/session/{id}/events -- SSE: backlog replay then live events
	handleGet(mux, "/api/session/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		s, ok := srv.sessions.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		flusher, fok := w.(http.Flusher)
		if !fok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		sseHeaders(w)

		history, live, cancel := s.Events()
		defer cancel()

		for _, e := range history {
			sseSend(w, flusher, "update", e)
		}

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-live:
				if !ok {
					return
				}
				sseSend(w, flusher, "update", e)
			}
		}
	})

	// POST /api/session/{id}/chat -- send one chat message
	handlePost(mux, "/api/session/{id}/chat", func(w http.ResponseWriter, r *http.Request, req struct {
		Text string `json:"text"`
	}) {
		s, ok := srv.sessions.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if req.Text == "" {
			http.Error(w, "missing text", http.StatusBadRequest)
			return
		}
		m, err := s.SendChat(req.Text)
		switch {
		case errors.Is(err, channel.ErrNotConnected):
			http.Error(w, "chat channel not connected", http.StatusServiceUnavailable)
		case errors.Is(err, session.ErrSessionEnded):
			http.Error(w, "session ended", http.StatusGone)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			writeJSON(w, m)
		}
	})

	// GET /api/session/{id}/chat -- transcript so far
	handleGet(mux, "/api/session/{id}/chat", func(w http.ResponseWriter, r *http.Request) {
		s, ok := srv.sessions.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		transcript := s.Transcript()
		if transcript == nil {
			transcript = []directory.Message{}
		}
		writeJSON(w, transcript)
	})

	// POST /api/session/{id}/leave -- end the session. Idempotent: leaving
	// an already-gone session is still a leave.
	handlePost(mux, "/api/session/{id}/leave", func(w http.ResponseWriter, r *http.Request, _ struct{}) {
		if s, ok := srv.sessions.Get(r.PathValue("id")); ok {
			s.Leave()
		}
		writeJSON(w, map[string]string{"status": "left"})
	})

	// POST /api/session/{id}/retry -- fresh video attempt after a failure
	handlePost(mux, "/api/session/{id}/retry", func(w http.ResponseWriter, r *http.Request, _ struct{}) {
		s, ok := srv.sessions.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		err := s.Retry(r.Context())
		switch {
		case errors.Is(err, session.ErrVideoNotFailed):
			http.Error(w, "video connection has not failed", http.StatusConflict)
		case errors.Is(err, session.ErrSessionEnded):
			http.Error(w, "session ended", http.StatusGone)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			writeJSON(w, map[string]string{"status": "retrying"})
		}
	})

	// POST /api/session/{id}/provider/event -- browser shell posts embed
	// events inward
	handlePost(mux, "/api/session/{id}/provider/event", func(w http.ResponseWriter, r *http.Request, req struct {
		Name    string         `json:"name"`
		Payload map[string]any `json:"payload"`
	}) {
		if req.Name == "" {
			http.Error(w, "missing event name", http.StatusBadRequest)
			return
		}
		b, ok := srv.bridges.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "no live provider bridge", http.StatusNotFound)
			return
		}
		b.HandleEvent(req.Name, req.Payload)
		writeJSON(w, map[string]string{"status": "ok"})
	})

	// GET /api/session/{id}/provider/commands -- SSE: embed config then
	// outbound commands
	handleGet(mux, "/api/session/{id}/provider/commands", func(w http.ResponseWriter, r *http.Request) {
		b, ok := srv.bridges.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "no live provider bridge", http.StatusNotFound)
			return
		}
		flusher, fok := w.(http.Flusher)
		if !fok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		sseHeaders(w)

		cfg := b.Config()
		sseSend(w, flusher, "config", map[string]string{
			"roomId":      cfg.RoomID,
			"displayName": cfg.DisplayName,
			"subject":     cfg.Subject,
		})

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case cmd, ok := <-b.Commands():
				if !ok {
					return
				}
				sseSend(w, flusher, "command", cmd)
			}
		}
	})

	// GET /api/provider/script -- the cached provider bootstrap script
	handleGet(mux, "/api/provider/script", func(w http.ResponseWriter, r *http.Request) {
		script, err := srv.loader.Load(r.Context())
		if err != nil {
			log.Warnw("provider script unavailable", "err", err)
			http.Error(w, "provider script unavailable", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Write(script)
	})
}

// writeJoinError maps join pipeline failures onto HTTP.
func (srv *Server) writeJoinError(w http.ResponseWriter, err error) {
	var tooEarly *session.TooEarlyError
	switch {
	case errors.As(err, &tooEarly):
		writeJSONStatus(w, http.StatusTooEarly, map[string]any{
			"error":       "appointment not joinable yet",
			"allowed":     false,
			"waitMinutes": tooEarly.Decision.WaitMinutes,
			"opensAt":     tooEarly.Decision.OpensAt,
		})
	case errors.Is(err, directory.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, session.ErrNotParticipant):
		http.Error(w, "not a participant of this appointment", http.StatusForbidden)
	default:
		log.Warnw("join failed", "err", err)
		http.Error(w, "join failed", http.StatusInternalServerError)
	}
}

func (srv *Server) writeDirError(w http.ResponseWriter, err error) {
	if errors.Is(err, directory.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
