package net

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rust-and-ruin/server/internal/config"
	"rust-and-ruin/server/internal/coordinator"
	"rust-and-ruin/server/internal/state"
	"rust-and-ruin/server/internal/storage"
)

func newTestHandler(t *testing.T) (nethttp.Handler, *coordinator.Coordinator, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	coord := coordinator.New(coordinator.Config{
		Store:  store,
		Tables: config.DefaultTables(),
		Clock:  func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		Seed:   7,
		Oracle: coordinator.OracleFunc(func(ctx context.Context, accountID string) ([]string, error) {
			return []string{"veh-1"}, nil
		}),
	})
	return NewHTTPHandler(coord, HTTPHandlerConfig{}), coord, store
}

func seedNode(t *testing.T, store *storage.Memory, node *state.ResourceNode) {
	t.Helper()
	slices := &state.Slices{ResourceNodes: map[string]*state.ResourceNode{node.ID: node}}
	data, err := slices.Marshal(state.ResourceNodes)
	if err != nil {
		t.Fatalf("expected node encode to succeed, got %v", err)
	}
	if err := store.Persist(context.Background(), map[string][]byte{string(state.ResourceNodes): data}); err != nil {
		t.Fatalf("expected node seed to persist, got %v", err)
	}
}

func postJSON(t *testing.T, handler nethttp.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("expected request encode to succeed, got %v", err)
	}
	req := httptest.NewRequest(nethttp.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getPath(t *testing.T, handler nethttp.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		t.Fatalf("expected JSON response, got %v (%s)", err, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	rec := getPath(t, handler, "/health")
	if rec.Code != nethttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestCreateAccountEndpoint(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	rec := postJSON(t, handler, "/api/accounts", map[string]string{"accountId": "acct-1"})
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var account state.Account
	decodeBody(t, rec, &account)
	if account.ID != "acct-1" || account.Balance != 500 {
		t.Fatalf("expected fresh account with starting balance, got %+v", account)
	}
}

func TestAccountEndpointRejectsMalformedBody(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	req := httptest.NewRequest(nethttp.MethodPost, "/api/accounts", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	var body errorBody
	decodeBody(t, rec, &body)
	if body.Code != "invalid_argument" {
		t.Fatalf("expected invalid_argument code, got %q", body.Code)
	}
}

func TestDebitEndpointReportsConflict(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	postJSON(t, handler, "/api/accounts", map[string]string{"accountId": "acct-1"})

	rec := postJSON(t, handler, "/api/accounts/debit", map[string]any{
		"accountId": "acct-1", "amount": 9000, "reason": "overdraft",
	})
	if rec.Code != nethttp.StatusConflict {
		t.Fatalf("expected 409 for overdraft, got %d (%s)", rec.Code, rec.Body.String())
	}
	var body errorBody
	decodeBody(t, rec, &body)
	if body.Code != "insufficient_funds" {
		t.Fatalf("expected insufficient_funds code, got %q", body.Code)
	}
}

func TestMissionLifecycleOverHTTP(t *testing.T) {
	handler, _, store := newTestHandler(t)
	seedNode(t, store, &state.ResourceNode{
		ID: "node-1", Type: state.NodeScrap, X: 90, Y: 120,
		BaseYield: 80, CurrentYield: 80,
		Rarity: state.RarityCommon, Active: true,
	})
	postJSON(t, handler, "/api/accounts", map[string]string{"accountId": "acct-1"})
	postJSON(t, handler, "/api/accounts/vehicles/sync", map[string]string{"accountId": "acct-1"})

	rec := postJSON(t, handler, "/api/missions/start", map[string]any{
		"accountId": "acct-1", "vehicleIds": []string{"veh-1"}, "nodeId": "node-1", "kind": "scavenge",
	})
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200 on mission start, got %d (%s)", rec.Code, rec.Body.String())
	}
	var mission state.Mission
	decodeBody(t, rec, &mission)
	if mission.Status != state.MissionActive {
		t.Fatalf("expected active mission, got %+v", mission)
	}

	rec = getPath(t, handler, "/api/missions?id="+mission.ID)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200 on mission fetch, got %d", rec.Code)
	}

	rec = getPath(t, handler, "/api/missions/active")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200 on active list, got %d", rec.Code)
	}
	var active []state.Mission
	decodeBody(t, rec, &active)
	if len(active) != 1 {
		t.Fatalf("expected 1 active mission, got %d", len(active))
	}

	rec = postJSON(t, handler, "/api/missions/complete", map[string]any{
		"missionId": mission.ID, "force": true,
	})
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200 on forced completion, got %d (%s)", rec.Code, rec.Body.String())
	}
	var completed state.Mission
	decodeBody(t, rec, &completed)
	if completed.Status != state.MissionCompleted {
		t.Fatalf("expected completed mission, got %+v", completed)
	}
}

func TestMissionNotFoundIs404(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	rec := getPath(t, handler, "/api/missions?id=missing")
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("expected 404 for unknown mission, got %d", rec.Code)
	}
}

func TestAccountEndpointRejectsWrongMethod(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	rec := getPath(t, handler, "/api/accounts")
	if rec.Code != nethttp.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET on a POST route, got %d", rec.Code)
	}
}

func TestAdminCycleEndpoint(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	rec := postJSON(t, handler, "/api/admin/cycle", map[string]any{})
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200 on cycle, got %d (%s)", rec.Code, rec.Body.String())
	}
	var summary coordinator.CycleSummary
	decodeBody(t, rec, &summary)
	if summary.SpawnedNodes == 0 {
		t.Fatalf("expected the cycle to spawn nodes in an empty world, got %+v", summary)
	}

	rec = getPath(t, handler, "/api/nodes")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200 on node list, got %d", rec.Code)
	}
	var nodes []state.ResourceNode
	decodeBody(t, rec, &nodes)
	if len(nodes) != summary.SpawnedNodes {
		t.Fatalf("expected %d nodes listed, got %d", summary.SpawnedNodes, len(nodes))
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	postJSON(t, handler, "/api/accounts", map[string]string{"accountId": "acct-1"})
	rec := getPath(t, handler, "/diagnostics")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200 on diagnostics, got %d", rec.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Sessions  int    `json:"sessions"`
		Mutations []any  `json:"mutations"`
	}
	decodeBody(t, rec, &payload)
	if payload.Status != "ok" {
		t.Fatalf("expected ok status, got %q", payload.Status)
	}
	if len(payload.Mutations) == 0 {
		t.Fatalf("expected recorded mutations in diagnostics")
	}
}
