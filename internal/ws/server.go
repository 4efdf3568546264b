package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wa-bridge/backend/internal/config"
	"github.com/wa-bridge/backend/internal/diag"
	"github.com/wa-bridge/backend/internal/gateway"
	"github.com/wa-bridge/backend/internal/media"
	"github.com/wa-bridge/backend/internal/session"
)

// Server exposes the command API and the realtime channel.
type Server struct {
	machine        *session.Machine
	gateway        *gateway.Gateway
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	startedAt      time.Time
}

func NewServer(cfg config.ServerConfig, machine *session.Machine, gw *gateway.Gateway, broadcaster *Broadcaster) *Server {
	s := &Server{
		machine:        machine,
		gateway:        gw,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.AuthToken,
		startedAt:      time.Now(),
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/send-message", s.handleSendMessage)
	mux.HandleFunc("/send-media", s.handleSendMedia)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/health", s.handleHealth)
}

// apiResponse is the uniform command response envelope: 200 carries
// Response, failures carry Message with a stable error kind.
type apiResponse struct {
	Status   bool   `json:"status"`
	Response any    `json:"response,omitempty"`
	Message  any    `json:"message,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

type sendMessageRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type sendMediaRequest struct {
	Number  string `json:"number"`
	Caption string `json:"caption"`
	File    string `json:"file"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("subscriber connected: %s", r.RemoteAddr)
	sub := s.broadcaster.Register(conn)

	go func() {
		defer func() {
			s.broadcaster.Unregister(sub)
			log.Printf("subscriber disconnected: %s", r.RemoteAddr)
		}()
		for {
			// Subscribers never send anything meaningful; reading just
			// detects disconnects.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Status: false, Message: "invalid JSON body", Kind: "bad-request"})
		return
	}

	result, err := s.gateway.SendText(r.Context(), gateway.SendTextRequest{
		Number:  req.Number,
		Message: req.Message,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Status: true, Response: result})
}

func (s *Server) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Status: false, Message: "invalid JSON body", Kind: "bad-request"})
		return
	}

	result, err := s.gateway.SendMedia(r.Context(), gateway.SendMediaRequest{
		Number:  req.Number,
		Caption: req.Caption,
		FileURL: req.File,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Status: true, Response: result})
}

// writeCommandError maps the gateway's error taxonomy onto HTTP statuses
// with a stable kind string. Lifecycle failures never reach here — callers
// only ever see the outcome of their own request.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var validation *gateway.ValidationError
	var unreachable *gateway.UnreachableRecipientError
	var tooLarge *media.TooLargeError
	var fetch *media.FetchError
	var delivery *gateway.DeliveryError

	switch {
	case errors.As(err, &validation):
		missing := make(map[string]string, len(validation.Fields))
		for _, f := range validation.Fields {
			missing[f] = "must not be empty"
		}
		writeJSON(w, http.StatusUnprocessableEntity, apiResponse{Status: false, Message: missing, Kind: "validation"})

	case errors.As(err, &unreachable):
		writeJSON(w, http.StatusUnprocessableEntity, apiResponse{Status: false, Message: "The number is not registered", Kind: "unreachable-recipient"})

	case errors.Is(err, session.ErrNotReady):
		writeJSON(w, http.StatusUnprocessableEntity, apiResponse{Status: false, Message: "Session is not ready, try again later", Kind: "session-not-ready"})

	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusUnprocessableEntity, apiResponse{Status: false, Message: fmt.Sprintf("media exceeds the %d byte limit", tooLarge.Limit), Kind: "media-too-large"})

	case errors.As(err, &fetch):
		writeJSON(w, http.StatusInternalServerError, apiResponse{Status: false, Message: err.Error(), Kind: "media-fetch"})

	case errors.As(err, &delivery):
		writeJSON(w, http.StatusInternalServerError, apiResponse{Status: false, Message: err.Error(), Kind: "delivery"})

	default:
		writeJSON(w, http.StatusInternalServerError, apiResponse{Status: false, Message: err.Error(), Kind: "internal"})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Session     session.Status `json:"session"`
		Subscribers int            `json:"subscribers"`
	}{
		Session:     s.machine.Status(),
		Subscribers: s.broadcaster.SubscriberCount(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, diag.Collect(s.startedAt))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("response encode error: %v", err)
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}
	if r.Header.Get("X-Bridge-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
