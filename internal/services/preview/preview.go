// Package preview streams device frames and connection changes to browser
// clients over websockets and serves the service's health and device status.
package preview

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/lucsky/cuid"

	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/internal/services/device"
	"github.com/bbernstein/lacylights-pixels/internal/services/frame"
	"github.com/bbernstein/lacylights-pixels/internal/services/pubsub"
)

const (
	writeTimeout = 200 * time.Millisecond
	pingInterval = 10 * time.Second
	pongWait     = 2 * pingInterval
	bufferSize   = 16
)

// Session is one connected preview client.
type Session struct {
	ID        string
	DeviceID  string // empty for every device
	CreatedAt time.Time
}

// StatusFunc lists the current device statuses.
type StatusFunc func() []device.Status

// FrameMessage is sent for every frame a watched device produces.
type FrameMessage struct {
	Type   string     `json:"type"`
	Device string     `json:"device"`
	Pixels [][3]uint8 `json:"pixels"`
}

// StateMessage is sent when a watched device goes online or offline.
type StateMessage struct {
	Type   string `json:"type"`
	Device string `json:"device"`
	Online bool   `json:"online"`
}

// Service handles preview sessions.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ps       *pubsub.PubSub
	status   StatusFunc
	log      *logger.Log
	version  string
	started  time.Time
	upgrader websocket.Upgrader
}

// NewService creates a preview service publishing from ps.
func NewService(ps *pubsub.PubSub, status StatusFunc, log logger.Logger, version string) *Service {
	return &Service{
		sessions: make(map[string]*Session),
		ps:       ps,
		status:   status,
		log:      log.With(logger.Fields{"module": "preview"}),
		version:  version,
		started:  time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for WebSocket
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// StatusRoutes serves /health and /devices only.
func (s *Service) StatusRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/devices", s.handleDevices)
	return r
}

// Routes returns the status routes plus the /ws/preview stream.
func (s *Service) Routes() chi.Router {
	r := s.StatusRoutes()
	r.Get("/ws/preview", s.handleStream)
	return r
}

// Sessions returns the connected sessions, oldest first.
func (s *Service) Sessions() []Session {
	s.mu.RLock()
	list := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, *sess)
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	statuses := s.status()
	online := 0
	for _, st := range statuses {
		if st.Online {
			online++
		}
	}

	s.mu.RLock()
	sessions := len(s.sessions)
	s.mu.RUnlock()

	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"devices":   len(statuses),
		"online":    online,
		"sessions":  sessions,
	})
}

func (s *Service) handleDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.status())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// handleStream upgrades to a websocket and forwards frame and state updates
// for the requested device (or all devices) until the client goes away.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	sess := &Session{ID: cuid.New(), DeviceID: r.URL.Query().Get("device"), CreatedAt: time.Now()}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	frames := s.ps.Subscribe(pubsub.TopicFrameUpdated, sess.DeviceID, bufferSize)
	states := s.ps.Subscribe(pubsub.TopicDeviceState, sess.DeviceID, bufferSize)
	log := s.log.With(logger.Fields{"session": sess.ID, "device": sess.DeviceID})
	log.Debug("preview session started")

	defer func() {
		s.ps.Unsubscribe(frames)
		s.ps.Unsubscribe(states)
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
		conn.Close()
		log.Debug("preview session ended")
	}()

	// clients only send close frames; reading also handles pongs
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		var msg interface{}
		select {
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
			continue
		case m, ok := <-frames.Channel:
			if !ok {
				return
			}
			update := m.(pubsub.FrameUpdate)
			msg = FrameMessage{Type: "frame", Device: update.DeviceID, Pixels: triples(update.Pixels)}
		case m, ok := <-states.Channel:
			if !ok {
				return
			}
			change := m.(pubsub.StateChange)
			msg = StateMessage{Type: "state", Device: change.DeviceID, Online: change.Online}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.WithError(err).Debug("preview write failed")
			return
		}
	}
}

func triples(p frame.Pixels) [][3]uint8 {
	raw := p.Bytes()
	out := make([][3]uint8, len(p))
	for i := range out {
		copy(out[i][:], raw[i*3:i*3+3])
	}
	return out
}
