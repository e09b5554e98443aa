package devtools

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jilio/laco"
)

// ServerObserver receives session lifecycle events from a Server.
type ServerObserver interface {
	OnSessionOpen(id string)
	OnSessionClose(id string)
	OnAction(id, label string)
	OnJump(id string)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger for connection events.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithSessionHistory bounds each session's timeline.
func WithSessionHistory(n int) ServerOption {
	return func(s *Server) {
		s.historyLimit = n
	}
}

// WithObserver registers an observer for session events.
func WithObserver(o ServerObserver) ServerOption {
	return func(s *Server) {
		s.observer = o
	}
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(*http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// SessionInfo describes a connected client.
type SessionInfo struct {
	ID          string    `json:"id"`
	InstanceID  string    `json:"instanceId"`
	Name        string    `json:"name"`
	Entries     int       `json:"entries"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type session struct {
	id          string
	conn        *websocket.Conn
	connectedAt time.Time

	writeMu sync.Mutex

	// guarded by Server.mu
	instanceID string
	name       string
	timeline   *timeline
}

// Server is the monitor side of the websocket bridge. It is an http.Handler
// that upgrades every request to a websocket session.
type Server struct {
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	observer     ServerObserver
	historyLimit int
	writeTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewServer creates a monitor server.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		logger:       slog.Default(),
		historyLimit: DefaultHistoryLimit,
		writeTimeout: 5 * time.Second,
		sessions:     make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the connection and reads client messages until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("devtools: upgrade failed", "error", err)
		return
	}

	sess := &session{
		id:          uuid.NewString(),
		conn:        conn,
		connectedAt: time.Now(),
		timeline:    newTimeline(s.historyLimit),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("devtools: session opened", "session", sess.id, "remote", r.RemoteAddr)
	if s.observer != nil {
		s.observer.OnSessionOpen(sess.id)
	}

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		_ = conn.Close()

		s.logger.Info("devtools: session closed", "session", sess.id)
		if s.observer != nil {
			s.observer.OnSessionClose(sess.id)
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("devtools: read failed", "session", sess.id, "error", err)
			}
			return
		}
		s.handle(sess, msg)
	}
}

func (s *Server) handle(sess *session, msg Message) {
	entry := Entry{State: msg.Payload, At: time.Now()}

	switch msg.Type {
	case TypeInit:
		entry.Label = InitLabel
		s.mu.Lock()
		sess.instanceID = msg.InstanceID
		sess.name = msg.Name
		sess.timeline.reset(entry)
		s.mu.Unlock()

	case TypeAction:
		if msg.Action != nil {
			entry.Label = msg.Action.Type
		}
		s.mu.Lock()
		sess.timeline.add(entry)
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.OnAction(sess.id, entry.Label)
		}

	default:
		s.logger.Debug("devtools: ignoring message", "session", sess.id, "type", msg.Type)
	}
}

// Sessions lists connected clients, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, SessionInfo{
			ID:          sess.id,
			InstanceID:  sess.instanceID,
			Name:        sess.name,
			Entries:     len(sess.timeline.entries),
			ConnectedAt: sess.connectedAt,
		})
	}
	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return cmp.Or(a.ConnectedAt.Compare(b.ConnectedAt), cmp.Compare(a.ID, b.ID))
	})
	return infos
}

// Timeline returns a copy of the session's recorded entries.
func (s *Server) Timeline(id string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.timeline.list(), nil
}

// Jump asks the client behind session id to restore the entry at index.
func (s *Server) Jump(id string, index int) error {
	return s.jump(id, laco.JumpToAction, index)
}

// JumpToState is Jump with the JUMP_TO_STATE message type.
func (s *Server) JumpToState(id string, index int) error {
	return s.jump(id, laco.JumpToState, index)
}

func (s *Server) jump(id, kind string, index int) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	var (
		entry Entry
		err   error
	)
	if ok {
		entry, err = sess.timeline.at(index)
	}
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return err
	}

	msg, err := jumpMessage(kind, entry.State)
	if err != nil {
		return err
	}
	if err := s.write(sess, msg); err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.OnJump(id)
	}
	return nil
}

func (s *Server) write(sess *session, msg Message) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	if err := sess.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("devtools: set write deadline: %w", err)
	}
	if err := sess.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("devtools: write %s: %w", msg.Type, err)
	}
	return nil
}

// Close sends a close frame to every connected client.
func (s *Server) Close() error {
	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	for _, sess := range sessions {
		sess.writeMu.Lock()
		_ = sess.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		sess.writeMu.Unlock()
		_ = sess.conn.Close()
	}
	return nil
}
