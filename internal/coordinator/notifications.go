package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rust-and-ruin/server/internal/domain"
	"rust-and-ruin/server/internal/mutate"
	"rust-and-ruin/server/internal/state"
)

// notificationCap bounds each account's stored queue to the most recent
// entries.
const notificationCap = 50

// AddNotification queues a notification for an account and attempts live
// delivery to its sessions.
func (c *Coordinator) AddNotification(ctx context.Context, accountID, kind, title, body string) (state.Notification, error) {
	if accountID == "" || kind == "" {
		return state.Notification{}, domain.E(domain.CodeInvalidArgument, "account id and kind are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	note, outcome, err := mutate.Run(ctx, c.engine, "notification.add",
		[]state.ID{state.Notifications},
		mutate.Options{CorrelationID: accountID},
		func(draft, pristine *state.Slices) (state.Notification, *mutate.Plan, error) {
			note := c.queueNotification(draft, accountID, kind, title, body, now)
			return note, &mutate.Plan{Accounts: []string{accountID}}, nil
		})
	if err != nil {
		return state.Notification{}, err
	}
	c.applyPlan(ctx, outcome.Plan)
	c.registry.Deliver(ctx, accountID, note)
	return note, nil
}

// ListNotifications returns the queued notifications for an account, oldest
// first.
func (c *Coordinator) ListNotifications(ctx context.Context, accountID string) ([]state.Notification, error) {
	if accountID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "account id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	slices, err := c.engine.Read(ctx, state.Notifications)
	if err != nil {
		return nil, err
	}
	return append([]state.Notification(nil), slices.Notifications[accountID]...), nil
}

// queueNotification appends to the account queue, evicting the oldest
// entries beyond the cap. Used inside mutation functions.
func (c *Coordinator) queueNotification(draft *state.Slices, accountID, kind, title, body string, now time.Time) state.Notification {
	note := state.Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: now,
	}
	queue := append(draft.Notifications[accountID], note)
	if len(queue) > notificationCap {
		queue = queue[len(queue)-notificationCap:]
	}
	draft.Notifications[accountID] = queue
	return note
}
