package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"connect-arena/internal/arena"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

type updateMessage struct {
	Type string `json:"type"`
	*arena.MatchState
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server fans match state updates out to spectators. Slow clients drop
// frames instead of stalling the broadcaster.
type Server struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	watchers map[string]map[*client]bool
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		watchers: map[string]map[*client]bool{},
	}
}

// HandleWS upgrades the connection and subscribes it to one match.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match_id")
	if matchID == "" {
		http.Error(w, "match_id required", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	s.register(matchID, c)
	log.Debug().Str("match_id", matchID).Msg("spectator connected")

	go s.writeLoop(matchID, c)
	s.readLoop(matchID, c)
}

func (s *Server) register(matchID string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers[matchID] == nil {
		s.watchers[matchID] = map[*client]bool{}
	}
	s.watchers[matchID][c] = true
}

func (s *Server) unregister(matchID string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.watchers[matchID]; ok {
		if set[c] {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(s.watchers, matchID)
		}
	}
}

// readLoop drains inbound frames until the peer goes away. Spectators
// send nothing we care about.
func (s *Server) readLoop(matchID string, c *client) {
	defer func() {
		s.unregister(matchID, c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(matchID string, c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.conn.Close()
}

// Broadcast pushes a state update to everyone watching the match.
func (s *Server) Broadcast(matchID string, state *arena.MatchState) {
	payload, err := json.Marshal(updateMessage{Type: "update", MatchState: state})
	if err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("marshal ws update")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.watchers[matchID] {
		select {
		case c.send <- payload:
		default:
			// Client cannot keep up, skip this frame.
		}
	}
}

// WatcherCount reports how many spectators a match has.
func (s *Server) WatcherCount(matchID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers[matchID])
}
