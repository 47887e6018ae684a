// Package session tracks duplex connections and handles notification
// delivery: per-session pending acknowledgements and bounded per-account
// replay queues for offline sends.
package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rust-and-ruin/server/internal/protocol"
)

const writeWait = 10 * time.Second

// Conn is the write surface a session needs. *websocket.Conn satisfies it.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one live duplex connection. Owned by the accept path; the
// registry only references it by id.
type Session struct {
	ID string

	conn    Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	accountID     string
	authenticated bool
	lastHeartbeat time.Time
	subscribed    []string
	pending       map[string]struct{}
}

func newSession(id string, conn Conn, now time.Time) *Session {
	return &Session{
		ID:            id,
		conn:          conn,
		lastHeartbeat: now,
		pending:       make(map[string]struct{}),
	}
}

// Send marshals one outbound variant and writes it under the write mutex.
func (s *Session) Send(msg protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// AccountID returns the bound account id, empty until authenticated.
func (s *Session) AccountID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID
}

// Authenticated reports whether an account has been bound.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Subscribed returns the event categories the client asked for.
func (s *Session) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscribed...)
}

// LastHeartbeat returns the most recent activity time.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// PendingCount reports notifications sent but not yet acknowledged.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Session) bind(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountID = accountID
	s.authenticated = true
}

func (s *Session) subscribe(events []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append([]string(nil), events...)
}

func (s *Session) heartbeat(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = now
}

func (s *Session) trackPending(notificationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[notificationID] = struct{}{}
}

// ack removes acknowledged ids. Acknowledging an unknown or already-acked
// id is a no-op.
func (s *Session) ack(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, id := range ids {
		if _, ok := s.pending[id]; ok {
			delete(s.pending, id)
			removed++
		}
	}
	return removed
}

var _ Conn = (*websocket.Conn)(nil)
