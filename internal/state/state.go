// Package state defines the persisted slice partitions of the salvage world
// and the canonical encoding used to clone, diff, and store them.
package state

import (
	"encoding/json"
	"fmt"
	"time"
)

// ID names one independently persisted partition of world state.
type ID string

const (
	Players       ID = "players"
	Notifications ID = "notifications"
	Missions      ID = "missions"
	ResourceNodes ID = "resourceNodes"
	WorldMetrics  ID = "worldMetrics"
	Progression   ID = "progression"
	Contributions ID = "contributions"
	Settlements   ID = "settlements"
	Creatures     ID = "creatures"
)

// All lists every slice id in storage-key order.
func All() []ID {
	return []ID{
		Players, Notifications, Missions, ResourceNodes, WorldMetrics,
		Progression, Contributions, Settlements, Creatures,
	}
}

// NodeType is the closed set of harvestable resource kinds.
type NodeType string

const (
	NodeScrap NodeType = "scrap"
	NodeFuel  NodeType = "fuel"
	NodeAlloy NodeType = "alloy"
	NodeRelic NodeType = "relic"
)

// NodeTypes lists the node kinds in spawn order.
func NodeTypes() []NodeType {
	return []NodeType{NodeScrap, NodeFuel, NodeAlloy, NodeRelic}
}

// Rarity is the closed tier set used by the weighted spawn draw.
type Rarity string

const (
	RarityCommon   Rarity = "common"
	RarityUncommon Rarity = "uncommon"
	RarityRare     Rarity = "rare"
	RarityPristine Rarity = "pristine"
)

type MissionStatus string

const (
	MissionActive    MissionStatus = "active"
	MissionCompleted MissionStatus = "completed"
)

type MissionKind string

const (
	MissionScavenge MissionKind = "scavenge"
	MissionSurvey   MissionKind = "survey"
	MissionEscort   MissionKind = "escort"
)

// Account is one player ledger. Created lazily on first fetch.
type Account struct {
	ID                string    `json:"id"`
	Balance           int64     `json:"balance"`
	VehicleIDs        []string  `json:"vehicleIds"`
	DiscoveredNodeIDs []string  `json:"discoveredNodeIds"`
	UpgradeIDs        []string  `json:"upgradeIds"`
	ActiveMissionIDs  []string  `json:"activeMissionIds"`
	LastLogin         time.Time `json:"lastLogin"`
}

// ResourceNode is one harvestable world node. Removed once yield hits zero.
type ResourceNode struct {
	ID            string    `json:"id"`
	Type          NodeType  `json:"type"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
	BaseYield     int64     `json:"baseYield"`
	CurrentYield  int64     `json:"currentYield"`
	Depleted      int64     `json:"depleted"`
	Rarity        Rarity    `json:"rarity"`
	Active        bool      `json:"active"`
	LastHarvested time.Time `json:"lastHarvested,omitzero"`
}

// Reward is the bundle computed at mission start and applied at completion.
type Reward struct {
	Credits int64 `json:"credits"`
	Salvage int64 `json:"salvage"`
	XP      int64 `json:"xp"`
}

// Mission is immutable after completion.
type Mission struct {
	ID          string        `json:"id"`
	AccountID   string        `json:"accountId"`
	VehicleIDs  []string      `json:"vehicleIds"`
	NodeID      string        `json:"nodeId"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletesAt time.Time     `json:"completesAt"`
	CompletedAt time.Time     `json:"completedAt,omitzero"`
	Status      MissionStatus `json:"status"`
	Kind        MissionKind   `json:"kind"`
	Reward      Reward        `json:"reward"`
}

// Notification is one queued alert for an account.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Metrics aggregates world-wide counters.
type Metrics struct {
	ActiveMissions    int64     `json:"activeMissions"`
	CompletedMissions int64     `json:"completedMissions"`
	EconomicActivity  int64     `json:"economicActivity"`
	UpdatedAt         time.Time `json:"updatedAt,omitzero"`
}

// AccountProgression tracks per-account XP earned from missions.
type AccountProgression struct {
	AccountID string `json:"accountId"`
	XP        int64  `json:"xp"`
	Level     int    `json:"level"`
}

// Contribution tallies salvage an account has delivered to settlements.
type Contribution struct {
	AccountID  string `json:"accountId"`
	Salvage    int64  `json:"salvage"`
	Deliveries int64  `json:"deliveries"`
}

// Settlement is a fixed world settlement accumulating delivered salvage.
type Settlement struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Stockpile int64   `json:"stockpile"`
}

// Creature is a roaming world creature kept near active node clusters.
type Creature struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	SpawnedAt time.Time `json:"spawnedAt"`
}

// HomeSettlementID anchors mission distances and salvage deliveries.
const HomeSettlementID = "haven"

// Slices holds the loaded value of every slice an operation asked for.
// Fields for slices outside the requested set stay nil.
type Slices struct {
	Players       map[string]*Account
	Notifications map[string][]Notification
	Missions      map[string]*Mission
	ResourceNodes map[string]*ResourceNode
	Metrics       *Metrics
	Progression   map[string]*AccountProgression
	Contributions map[string]*Contribution
	Settlements   map[string]*Settlement
	Creatures     map[string]*Creature
}

// SetDefault installs the defined default value for an absent slice.
func (s *Slices) SetDefault(id ID) error {
	switch id {
	case Players:
		s.Players = make(map[string]*Account)
	case Notifications:
		s.Notifications = make(map[string][]Notification)
	case Missions:
		s.Missions = make(map[string]*Mission)
	case ResourceNodes:
		s.ResourceNodes = make(map[string]*ResourceNode)
	case WorldMetrics:
		s.Metrics = &Metrics{}
	case Progression:
		s.Progression = make(map[string]*AccountProgression)
	case Contributions:
		s.Contributions = make(map[string]*Contribution)
	case Settlements:
		s.Settlements = map[string]*Settlement{
			HomeSettlementID: {ID: HomeSettlementID, Name: "Haven", X: 0, Y: 0},
		}
	case Creatures:
		s.Creatures = make(map[string]*Creature)
	default:
		return fmt.Errorf("unknown slice %q", id)
	}
	return nil
}

// Marshal returns the canonical encoding of one slice. Map keys are emitted
// in sorted order, so equal values always produce equal bytes.
func (s *Slices) Marshal(id ID) ([]byte, error) {
	switch id {
	case Players:
		return json.Marshal(s.Players)
	case Notifications:
		return json.Marshal(s.Notifications)
	case Missions:
		return json.Marshal(s.Missions)
	case ResourceNodes:
		return json.Marshal(s.ResourceNodes)
	case WorldMetrics:
		return json.Marshal(s.Metrics)
	case Progression:
		return json.Marshal(s.Progression)
	case Contributions:
		return json.Marshal(s.Contributions)
	case Settlements:
		return json.Marshal(s.Settlements)
	case Creatures:
		return json.Marshal(s.Creatures)
	default:
		return nil, fmt.Errorf("unknown slice %q", id)
	}
}

// Unmarshal decodes the canonical encoding into one slice field.
func (s *Slices) Unmarshal(id ID, data []byte) error {
	switch id {
	case Players:
		return json.Unmarshal(data, &s.Players)
	case Notifications:
		return json.Unmarshal(data, &s.Notifications)
	case Missions:
		return json.Unmarshal(data, &s.Missions)
	case ResourceNodes:
		return json.Unmarshal(data, &s.ResourceNodes)
	case WorldMetrics:
		return json.Unmarshal(data, &s.Metrics)
	case Progression:
		return json.Unmarshal(data, &s.Progression)
	case Contributions:
		return json.Unmarshal(data, &s.Contributions)
	case Settlements:
		return json.Unmarshal(data, &s.Settlements)
	case Creatures:
		return json.Unmarshal(data, &s.Creatures)
	default:
		return fmt.Errorf("unknown slice %q", id)
	}
}

// Clone deep-copies the requested slices through the canonical encoding so a
// mutation can never reach back into the pristine values.
func (s *Slices) Clone(ids []ID) (*Slices, error) {
	cloned := &Slices{}
	for _, id := range ids {
		data, err := s.Marshal(id)
		if err != nil {
			return nil, fmt.Errorf("clone slice %q: %w", id, err)
		}
		if err := cloned.Unmarshal(id, data); err != nil {
			return nil, fmt.Errorf("clone slice %q: %w", id, err)
		}
	}
	return cloned, nil
}
