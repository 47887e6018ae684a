package state

import (
	"bytes"
	"testing"
	"time"
)

func TestSetDefaultSeedsHomeSettlement(t *testing.T) {
	s := &Slices{}
	if err := s.SetDefault(Settlements); err != nil {
		t.Fatalf("expected default to install, got %v", err)
	}
	home, ok := s.Settlements[HomeSettlementID]
	if !ok {
		t.Fatalf("expected default settlements to contain %q", HomeSettlementID)
	}
	if home.X != 0 || home.Y != 0 {
		t.Fatalf("expected home settlement at origin, got (%v, %v)", home.X, home.Y)
	}
}

func TestSetDefaultRejectsUnknownSlice(t *testing.T) {
	s := &Slices{}
	if err := s.SetDefault(ID("bogus")); err == nil {
		t.Fatalf("expected error for unknown slice id")
	}
}

func TestCanonicalEncodingIsStable(t *testing.T) {
	s := &Slices{Players: map[string]*Account{
		"b": {ID: "b", Balance: 2},
		"a": {ID: "a", Balance: 1},
		"c": {ID: "c", Balance: 3},
	}}
	first, err := s.Marshal(Players)
	if err != nil {
		t.Fatalf("expected marshal to succeed, got %v", err)
	}
	second, err := s.Marshal(Players)
	if err != nil {
		t.Fatalf("expected marshal to succeed, got %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected equal values to encode to equal bytes")
	}
}

func TestCloneIsolatesMutations(t *testing.T) {
	s := &Slices{}
	for _, id := range []ID{Players, ResourceNodes} {
		if err := s.SetDefault(id); err != nil {
			t.Fatalf("expected default for %q, got %v", id, err)
		}
	}
	s.Players["acct-1"] = &Account{ID: "acct-1", Balance: 100, VehicleIDs: []string{"veh-1"}}
	s.ResourceNodes["node-1"] = &ResourceNode{ID: "node-1", Type: NodeScrap, CurrentYield: 40, Active: true}

	clone, err := s.Clone([]ID{Players, ResourceNodes})
	if err != nil {
		t.Fatalf("expected clone to succeed, got %v", err)
	}
	clone.Players["acct-1"].Balance = 0
	clone.Players["acct-1"].VehicleIDs[0] = "veh-9"
	clone.ResourceNodes["node-1"].CurrentYield = 0

	if s.Players["acct-1"].Balance != 100 {
		t.Fatalf("expected pristine balance 100, got %d", s.Players["acct-1"].Balance)
	}
	if s.Players["acct-1"].VehicleIDs[0] != "veh-1" {
		t.Fatalf("expected pristine vehicle list untouched, got %v", s.Players["acct-1"].VehicleIDs)
	}
	if s.ResourceNodes["node-1"].CurrentYield != 40 {
		t.Fatalf("expected pristine yield 40, got %d", s.ResourceNodes["node-1"].CurrentYield)
	}
}

func TestCloneSkipsUnrequestedSlices(t *testing.T) {
	s := &Slices{}
	if err := s.SetDefault(Players); err != nil {
		t.Fatalf("expected default to install, got %v", err)
	}
	clone, err := s.Clone([]ID{Players})
	if err != nil {
		t.Fatalf("expected clone to succeed, got %v", err)
	}
	if clone.Missions != nil || clone.Metrics != nil {
		t.Fatalf("expected unrequested slices to stay nil")
	}
}

func TestMarshalRoundTripsZeroTimes(t *testing.T) {
	s := &Slices{ResourceNodes: map[string]*ResourceNode{
		"node-1": {ID: "node-1", Type: NodeFuel, Active: true},
	}}
	data, err := s.Marshal(ResourceNodes)
	if err != nil {
		t.Fatalf("expected marshal to succeed, got %v", err)
	}
	decoded := &Slices{}
	if err := decoded.Unmarshal(ResourceNodes, data); err != nil {
		t.Fatalf("expected unmarshal to succeed, got %v", err)
	}
	if got := decoded.ResourceNodes["node-1"].LastHarvested; !got.Equal(time.Time{}) {
		t.Fatalf("expected zero harvest time to survive the round trip, got %v", got)
	}
}
