package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rival420/donwatcher/activity"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The operator dashboard is same-origin or a trusted client; the outer
	// deployment handles origin policy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleActivity returns the most recent activity entries.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.activity.Tail(limit)
	if err != nil {
		s.logger.Errorw("Failed to tail activity log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read activity log")
		return
	}
	if entries == nil {
		entries = []*activity.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleActivityFeed upgrades to a websocket and streams activity entries as
// they are recorded.
func (s *Server) handleActivityFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Activity feed upgrade failed", "error", err)
		return
	}

	sub := s.activity.Subscribe()
	s.logger.Debugw("Activity feed subscriber connected", "remote", r.RemoteAddr)

	// Reader: consume control frames and detect disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.activity.Unsubscribe(sub)
		conn.Close()
		s.logger.Debugw("Activity feed subscriber disconnected", "remote", r.RemoteAddr)
	}()

	for {
		select {
		case entry, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
