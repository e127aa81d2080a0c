package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/exam-sentinel/backend/internal/session"
	"github.com/gorilla/websocket"
)

// Server exposes the presentation-shell surface: a WebSocket endpoint the
// kiosk shell connects to, and a small status API for diagnostics.
type Server struct {
	machine        *session.Machine
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

func NewServer(machine *session.Machine, broadcaster *Broadcaster, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		machine:        machine,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      authToken,
	}

	for _, origin := range allowedOrigins {
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
	mux.HandleFunc("/api/status", s.handleStatus)
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
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	log.Printf("[ws] shell connected: %s", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("[ws] shell disconnected: %s", r.RemoteAddr)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleShellMessage(data)
		}
	}()
}

// handleShellMessage decodes an event from the shell and submits it to the
// state machine. Unknown message types are logged and ignored.
func (s *Server) handleShellMessage(data []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[ws] bad shell message: %v", err)
		return
	}

	switch msg.Type {
	case EvStartRequested:
		s.machine.Submit(session.Event{Type: session.EventStartRequested})
	case EvWarningTimerExpired:
		s.machine.Submit(session.Event{Type: session.EventWarningTimerExpired})
	case EvEndRequested:
		s.machine.Submit(session.Event{Type: session.EventEndRequested})
	default:
		log.Printf("[ws] ignoring shell message type %q", msg.Type)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(StatusPayload{State: s.machine.Snapshot()}); err != nil {
		log.Printf("[ws] status encode error: %v", err)
	}
}

// checkOrigin permits same-host connections and any explicitly allowed
// origin. Browser pages from other origins are rejected; non-browser shells
// send no Origin header and pass.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if parsed.Host == r.Host || s.allowedHosts[parsed.Host] {
		return true
	}
	log.Printf("[ws] rejecting origin %q", origin)
	return false
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.authToken {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.authToken
}

func ListenAndServe(host string, port int, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("[ws] listening on %s", addr)
	return http.ListenAndServe(addr, handler)
}
