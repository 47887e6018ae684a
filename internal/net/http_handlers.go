// Package net translates transport calls into coordinator operations: JSON
// endpoints for the request-style surface and the websocket upgrade path.
package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"rust-and-ruin/server/internal/coordinator"
	"rust-and-ruin/server/internal/domain"
	"rust-and-ruin/server/internal/net/ws"
	"rust-and-ruin/server/internal/state"
)

type HTTPHandlerConfig struct {
	Logger *log.Logger
}

type accountRequest struct {
	AccountID string `json:"accountId"`
}

type balanceRequest struct {
	AccountID string `json:"accountId"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

type startMissionRequest struct {
	AccountID  string   `json:"accountId"`
	VehicleIDs []string `json:"vehicleIds"`
	NodeID     string   `json:"nodeId"`
	Kind       string   `json:"kind"`
}

type completeMissionRequest struct {
	MissionID string `json:"missionId"`
	Force     bool   `json:"force"`
}

type notificationRequest struct {
	AccountID string `json:"accountId"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHTTPHandler builds the full request-routing surface for one world.
func NewHTTPHandler(coord *coordinator.Coordinator, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Sessions   int    `json:"sessions"`
			Mutations  any    `json:"mutations"`
			Dropped    uint64 `json:"mutationsDropped"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Sessions:   coord.Registry().Count(),
			Mutations:  coord.Journal().Snapshot(),
			Dropped:    coord.Journal().Dropped(),
		}
		writeJSON(w, logger, payload)
	})

	mux.HandleFunc("POST /api/accounts", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req accountRequest
		if !decode(w, r, logger, &req) {
			return
		}
		account, err := coord.GetOrCreateAccount(r.Context(), req.AccountID)
		respond(w, logger, account, err)
	})

	mux.HandleFunc("POST /api/accounts/credit", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req balanceRequest
		if !decode(w, r, logger, &req) {
			return
		}
		account, err := coord.Credit(r.Context(), req.AccountID, req.Amount, req.Reason)
		respond(w, logger, account, err)
	})

	mux.HandleFunc("POST /api/accounts/debit", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req balanceRequest
		if !decode(w, r, logger, &req) {
			return
		}
		account, err := coord.Debit(r.Context(), req.AccountID, req.Amount, req.Reason)
		respond(w, logger, account, err)
	})

	mux.HandleFunc("POST /api/accounts/vehicles/sync", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req accountRequest
		if !decode(w, r, logger, &req) {
			return
		}
		account, err := coord.SyncVehicles(r.Context(), req.AccountID)
		respond(w, logger, account, err)
	})

	mux.HandleFunc("GET /api/accounts/missions", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		missions, err := coord.ListAccountMissions(r.Context(), r.URL.Query().Get("accountId"))
		respond(w, logger, missions, err)
	})

	mux.HandleFunc("POST /api/missions/start", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req startMissionRequest
		if !decode(w, r, logger, &req) {
			return
		}
		mission, err := coord.StartMission(r.Context(), req.AccountID, req.VehicleIDs, req.NodeID, state.MissionKind(req.Kind))
		respond(w, logger, mission, err)
	})

	mux.HandleFunc("POST /api/missions/complete", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req completeMissionRequest
		if !decode(w, r, logger, &req) {
			return
		}
		mission, err := coord.CompleteMission(r.Context(), req.MissionID, req.Force)
		respond(w, logger, mission, err)
	})

	mux.HandleFunc("GET /api/missions", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		mission, err := coord.GetMission(r.Context(), r.URL.Query().Get("id"))
		respond(w, logger, mission, err)
	})

	mux.HandleFunc("GET /api/missions/active", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		missions, err := coord.ListActiveMissions(r.Context())
		respond(w, logger, missions, err)
	})

	mux.HandleFunc("POST /api/notifications", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req notificationRequest
		if !decode(w, r, logger, &req) {
			return
		}
		note, err := coord.AddNotification(r.Context(), req.AccountID, req.Kind, req.Title, req.Body)
		respond(w, logger, note, err)
	})

	mux.HandleFunc("GET /api/notifications", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		notes, err := coord.ListNotifications(r.Context(), r.URL.Query().Get("accountId"))
		respond(w, logger, notes, err)
	})

	mux.HandleFunc("GET /api/nodes", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nodes, err := coord.ListResourceNodes(r.Context())
		respond(w, logger, nodes, err)
	})

	mux.HandleFunc("GET /api/world", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		metrics, err := coord.WorldMetrics(r.Context())
		respond(w, logger, metrics, err)
	})

	mux.HandleFunc("POST /api/admin/cycle", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		summary, err := coord.RunManagementCycle(r.Context())
		respond(w, logger, summary, err)
	})

	mux.HandleFunc("POST /api/admin/reset", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := coord.Reset(r.Context()); err != nil {
			respond(w, logger, nil, err)
			return
		}
		respond(w, logger, map[string]string{"status": "reset"}, nil)
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}
	wsHandler := ws.NewHandler(coord, logger)

	mux.HandleFunc("/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("upgrade failed: %v", err)
			return
		}
		wsHandler.Serve(r.Context(), conn)
	})

	return mux
}

func decode(w nethttp.ResponseWriter, r *nethttp.Request, logger *log.Logger, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		httpError(w, logger, errorBody{Code: string(domain.CodeInvalidArgument), Message: "malformed request body"}, nethttp.StatusBadRequest)
		return false
	}
	return true
}

func respond(w nethttp.ResponseWriter, logger *log.Logger, payload any, err error) {
	if err == nil {
		writeJSON(w, logger, payload)
		return
	}
	if domainErr, ok := domain.As(err); ok {
		httpError(w, logger, errorBody{Code: string(domainErr.Code), Message: domainErr.Message}, statusFor(domainErr.Code))
		return
	}
	logger.Printf("operation failed: %v", err)
	httpError(w, logger, errorBody{Code: "internal", Message: "operation failed"}, nethttp.StatusInternalServerError)
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeAccountNotFound, domain.CodeMissionNotFound, domain.CodeNodeNotFound,
		domain.CodeNotificationNotFound, domain.CodeSessionNotFound:
		return nethttp.StatusNotFound
	case domain.CodeInvalidArgument:
		return nethttp.StatusBadRequest
	default:
		return nethttp.StatusConflict
	}
}

func writeJSON(w nethttp.ResponseWriter, logger *log.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, logger *log.Logger, body errorBody, status int) {
	data, err := json.Marshal(body)
	if err != nil {
		logger.Printf("failed to encode error: %v", err)
		nethttp.Error(w, body.Message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
