package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rust-and-ruin/server/internal/protocol"
	"rust-and-ruin/server/internal/state"
	"rust-and-ruin/server/logging"
)

// replayLimit bounds the per-account replay queue; the oldest entry is
// evicted when a new one arrives at the cap.
const replayLimit = 10

// Registry owns the live session map and the replay queues. It is explicit
// state threaded from the coordinator, never package-level, so independent
// worlds never share sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	replay   map[string][]state.Notification
	log      logging.Publisher
	clock    func() time.Time
}

func NewRegistry(log logging.Publisher, clock func() time.Time) *Registry {
	if log == nil {
		log = logging.NopPublisher()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		sessions: make(map[string]*Session),
		replay:   make(map[string][]state.Notification),
		log:      log,
		clock:    clock,
	}
}

// Register admits a new connection as an unauthenticated session.
func (r *Registry) Register(conn Conn) *Session {
	sess := newSession(uuid.NewString(), conn, r.clock())
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	return sess
}

// Remove forgets a session. The caller owns closing the connection.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Get returns the session with the given id.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	return sess, ok
}

// Authenticate binds an account to a session. Any notifications queued for
// the account are discarded, not replayed: a fresh connection should not
// surface stale alerts.
func (r *Registry) Authenticate(ctx context.Context, sessionID, accountID string) (*Session, bool) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	var discarded int
	if ok {
		discarded = len(r.replay[accountID])
		delete(r.replay, accountID)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	sess.bind(accountID)
	sess.heartbeat(r.clock())
	if discarded > 0 {
		r.log.Publish(ctx, logging.Event{
			Type:     "session.replay_discarded",
			Severity: logging.SeverityInfo,
			Category: logging.CategorySession,
			Actor:    logging.EntityRef{ID: accountID, Kind: logging.EntityKindAccount},
			Payload:  map[string]any{"discarded": discarded},
		})
	}
	return sess, true
}

// Subscribe records the requested event categories.
func (r *Registry) Subscribe(sessionID string, events []string) (*Session, bool) {
	sess, ok := r.Get(sessionID)
	if !ok {
		return nil, false
	}
	sess.subscribe(events)
	return sess, true
}

// Heartbeat refreshes a session's last-activity time.
func (r *Registry) Heartbeat(sessionID string) bool {
	sess, ok := r.Get(sessionID)
	if !ok {
		return false
	}
	sess.heartbeat(r.clock())
	return true
}

// Ack clears pending notification ids for a session. Repeat acknowledgements
// have no additional effect.
func (r *Registry) Ack(sessionID string, ids []string) int {
	sess, ok := r.Get(sessionID)
	if !ok {
		return 0
	}
	return sess.ack(ids)
}

// SessionsFor returns every authenticated session bound to an account.
func (r *Registry) SessionsFor(accountID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, sess := range r.sessions {
		if sess.Authenticated() && sess.AccountID() == accountID {
			out = append(out, sess)
		}
	}
	return out
}

// Subscribers returns every authenticated session subscribed to the given
// event category, explicitly or through the "*" wildcard. A session that
// never subscribed receives nothing.
func (r *Registry) Subscribers(event string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, sess := range r.sessions {
		if !sess.Authenticated() {
			continue
		}
		events := sess.Subscribed()
		if len(events) == 0 {
			continue
		}
		for _, e := range events {
			if e == event || e == "*" {
				out = append(out, sess)
				break
			}
		}
	}
	return out
}

// Deliver sends a notification to every live session bound to the account,
// tracking each send for acknowledgement. With no live session the
// notification lands on the bounded replay queue instead. The queue is never
// auto-flushed; authenticate discards it by design.
func (r *Registry) Deliver(ctx context.Context, accountID string, note state.Notification) int {
	targets := r.SessionsFor(accountID)
	delivered := 0
	for _, sess := range targets {
		msg := protocol.Notification{
			ID:       note.ID,
			NoteKind: note.Kind,
			Title:    note.Title,
			Message:  note.Body,
		}
		if err := sess.Send(msg); err != nil {
			r.log.Publish(ctx, logging.Event{
				Type:     "session.send_failed",
				Severity: logging.SeverityWarn,
				Category: logging.CategorySession,
				Actor:    logging.EntityRef{ID: sess.ID, Kind: logging.EntityKindSession},
				Payload:  map[string]any{"error": err.Error()},
			})
			continue
		}
		sess.trackPending(note.ID)
		delivered++
	}
	if delivered == 0 {
		r.queueReplay(accountID, note)
	}
	return delivered
}

func (r *Registry) queueReplay(accountID string, note state.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.replay[accountID]
	if len(queue) >= replayLimit {
		queue = queue[1:]
	}
	r.replay[accountID] = append(queue, note)
}

// ReplayQueue exposes the undelivered notifications for an account,
// read-only, for operator inspection.
func (r *Registry) ReplayQueue(accountID string) []state.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]state.Notification(nil), r.replay[accountID]...)
}

// PruneStale removes and returns sessions whose last activity is older than
// maxAge. The caller closes the returned sessions.
func (r *Registry) PruneStale(maxAge time.Duration) []*Session {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []*Session
	for id, sess := range r.sessions {
		if now.Sub(sess.LastHeartbeat()) > maxAge {
			stale = append(stale, sess)
			delete(r.sessions, id)
		}
	}
	return stale
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
