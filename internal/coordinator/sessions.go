package coordinator

import (
	"context"
	"time"

	"rust-and-ruin/server/internal/domain"
	"rust-and-ruin/server/internal/session"
	"rust-and-ruin/server/logging"
)

// AttachSession admits a new duplex connection, unauthenticated.
func (c *Coordinator) AttachSession(conn session.Conn) *session.Session {
	sess := c.registry.Register(conn)
	c.log.Publish(context.Background(), logging.Event{
		Type:     "session.attached",
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Actor:    logging.EntityRef{ID: sess.ID, Kind: logging.EntityKindSession},
	})
	return sess
}

// DetachSession forgets a session after its connection ends.
func (c *Coordinator) DetachSession(sessionID string) {
	c.registry.Remove(sessionID)
}

// AuthenticateSession binds a pre-verified account id to a session. The
// account is created lazily, and any replay-queued notifications for it are
// discarded by the registry.
func (c *Coordinator) AuthenticateSession(ctx context.Context, sessionID, accountID string) (*session.Session, error) {
	if accountID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "account id is required")
	}
	c.mu.Lock()
	if _, err := c.getOrCreateAccountLocked(ctx, accountID); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	sess, ok := c.registry.Authenticate(ctx, sessionID, accountID)
	if !ok {
		return nil, domain.E(domain.CodeSessionNotFound, "session %s does not exist", sessionID)
	}
	return sess, nil
}

// SubscribeSession records the requested events and immediately pushes full
// snapshots so the client starts from known state.
func (c *Coordinator) SubscribeSession(ctx context.Context, sessionID string, events []string) error {
	sess, ok := c.registry.Subscribe(sessionID, events)
	if !ok {
		return domain.E(domain.CodeSessionNotFound, "session %s does not exist", sessionID)
	}
	if !sess.Authenticated() {
		return domain.E(domain.CodeSessionUnauthenticated, "session %s has not authenticated", sessionID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	player, err := c.playerSnapshot(ctx, sess.AccountID())
	if err != nil {
		return err
	}
	world, err := c.worldSnapshot(ctx)
	if err != nil {
		return err
	}
	if err := sess.Send(player); err != nil {
		return err
	}
	return sess.Send(world)
}

// HeartbeatSession refreshes the session's last-activity time.
func (c *Coordinator) HeartbeatSession(sessionID string) bool {
	return c.registry.Heartbeat(sessionID)
}

// AckNotifications clears delivery-tracking for the given notification ids.
func (c *Coordinator) AckNotifications(sessionID string, ids []string) int {
	return c.registry.Ack(sessionID, ids)
}

// PruneStaleSessions closes and forgets sessions with no recent heartbeat.
// Driven externally by the app loop.
func (c *Coordinator) PruneStaleSessions(maxAge time.Duration) int {
	stale := c.registry.PruneStale(maxAge)
	for _, sess := range stale {
		sess.Close()
		c.log.Publish(context.Background(), logging.Event{
			Type:     "session.pruned",
			Severity: logging.SeverityInfo,
			Category: logging.CategorySession,
			Actor:    logging.EntityRef{ID: sess.ID, Kind: logging.EntityKindSession},
		})
	}
	return len(stale)
}
