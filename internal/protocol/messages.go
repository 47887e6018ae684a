// Package protocol defines the duplex channel wire format: the inbound
// client envelope and the closed set of outbound message variants.
package protocol

import (
	"encoding/json"
	"fmt"

	"rust-and-ruin/server/internal/state"
)

// Inbound is the single envelope clients send. Type selects which fields
// are meaningful.
type Inbound struct {
	Type      string   `json:"type"`
	AccountID string   `json:"accountId,omitempty"`
	Events    []string `json:"events,omitempty"`
	IDs       []string `json:"ids,omitempty"`
	SentAt    int64    `json:"sentAt,omitempty"`
}

const (
	InboundAuthenticate    = "authenticate"
	InboundSubscribe       = "subscribe"
	InboundPing            = "ping"
	InboundNotificationAck = "notification_ack"
)

// Message is the closed set of outbound variants. Adding a kind without a
// Kind method is a compile error at the send site.
type Message interface {
	Kind() string
}

type ConnectionStatus struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
}

func (ConnectionStatus) Kind() string { return "connection_status" }

type PlayerState struct {
	Profile         *state.Account        `json:"profile"`
	Balance         int64                 `json:"balance"`
	ActiveMissions  []*state.Mission      `json:"activeMissions"`
	DiscoveredNodes []*state.ResourceNode `json:"discoveredNodes"`
	Notifications   []state.Notification  `json:"notifications"`
}

func (PlayerState) Kind() string { return "player_state" }

type WorldState struct {
	ResourceNodes []*state.ResourceNode `json:"resourceNodes"`
	Missions      []*state.Mission      `json:"missions"`
	WorldMetrics  state.Metrics         `json:"worldMetrics"`
}

func (WorldState) Kind() string { return "world_state" }

type MissionUpdate struct {
	Mission *state.Mission `json:"mission"`
	Event   string         `json:"event"`
}

func (MissionUpdate) Kind() string { return "mission_update" }

type Notification struct {
	ID       string         `json:"id"`
	NoteKind string         `json:"kind"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

func (Notification) Kind() string { return "notification" }

type Pong struct {
	ServerTime int64 `json:"serverTime"`
}

func (Pong) Kind() string { return "pong" }

type SubscriptionConfirmed struct {
	Events []string `json:"events"`
}

func (SubscriptionConfirmed) Kind() string { return "subscription_confirmed" }

type ErrorMessage struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (ErrorMessage) Kind() string { return "error" }

// Marshal wraps a variant in the outbound envelope, injecting the type tag.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("nil outbound message")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	tag, err := json.Marshal(m.Kind())
	if err != nil {
		return nil, fmt.Errorf("encode %s tag: %w", m.Kind(), err)
	}
	fields["type"] = tag
	return json.Marshal(fields)
}
