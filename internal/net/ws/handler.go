// Package ws runs the duplex channel protocol over a websocket connection.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"rust-and-ruin/server/internal/coordinator"
	"rust-and-ruin/server/internal/domain"
	"rust-and-ruin/server/internal/protocol"
	"rust-and-ruin/server/internal/session"
)

// Handler coordinates one websocket session against the world coordinator.
type Handler struct {
	coord  *coordinator.Coordinator
	logger *log.Logger
}

// NewHandler constructs a websocket session handler.
func NewHandler(coord *coordinator.Coordinator, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{coord: coord, logger: logger}
}

// Serve owns the connection until the read loop ends. Malformed messages and
// domain failures are answered with an error variant; the connection stays
// up. Read errors detach the session.
func (h *Handler) Serve(ctx context.Context, conn *websocket.Conn) {
	if h == nil || h.coord == nil || conn == nil {
		return
	}
	sess := h.coord.AttachSession(conn)
	defer func() {
		h.coord.DetachSession(sess.ID)
		conn.Close()
	}()

	if err := sess.Send(protocol.ConnectionStatus{Status: "connected"}); err != nil {
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg protocol.Inbound
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", sess.ID, err)
			if err := sess.Send(protocol.ErrorMessage{Message: "malformed message"}); err != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case protocol.InboundAuthenticate:
			_, err := h.coord.AuthenticateSession(ctx, sess.ID, msg.AccountID)
			if err != nil {
				if !h.sendFailure(sess, err) {
					return
				}
				continue
			}
			if err := sess.Send(protocol.ConnectionStatus{Status: "connected", Authenticated: true}); err != nil {
				return
			}
		case protocol.InboundSubscribe:
			if err := h.coord.SubscribeSession(ctx, sess.ID, msg.Events); err != nil {
				if !h.sendFailure(sess, err) {
					return
				}
				continue
			}
			if err := sess.Send(protocol.SubscriptionConfirmed{Events: msg.Events}); err != nil {
				return
			}
		case protocol.InboundPing:
			h.coord.HeartbeatSession(sess.ID)
			if err := sess.Send(protocol.Pong{ServerTime: time.Now().UnixMilli()}); err != nil {
				return
			}
		case protocol.InboundNotificationAck:
			h.coord.AckNotifications(sess.ID, msg.IDs)
		default:
			h.logger.Printf("unknown message type %q from %s", msg.Type, sess.ID)
			if err := sess.Send(protocol.ErrorMessage{Message: "unknown message type"}); err != nil {
				return
			}
		}
	}
}

// sendFailure reports an operation failure on the channel. Returns false
// when the connection itself is gone.
func (h *Handler) sendFailure(sess *session.Session, err error) bool {
	msg := protocol.ErrorMessage{Message: "operation failed"}
	if domainErr, ok := domain.As(err); ok {
		msg = protocol.ErrorMessage{Code: string(domainErr.Code), Message: domainErr.Message}
	} else {
		h.logger.Printf("channel operation failed: %v", err)
	}
	return sess.Send(msg) == nil
}
