package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rust-and-ruin/server/internal/state"
)

// Rect bounds the spawn region for nodes and creatures.
type Rect struct {
	MinX float64 `yaml:"minX"`
	MinY float64 `yaml:"minY"`
	MaxX float64 `yaml:"maxX"`
	MaxY float64 `yaml:"maxY"`
}

// Tables is the static economy configuration. Values are read-only lookup
// data; nothing in the coordinator computes them.
type Tables struct {
	// Yields maps node type and rarity to the spawn yield.
	Yields map[state.NodeType]map[state.Rarity]int64 `yaml:"yields"`
	// RarityWeights drives the weighted rarity draw at spawn time.
	RarityWeights map[state.Rarity]int `yaml:"rarityWeights"`
	// SpawnTargets is the desired active-node count per type.
	SpawnTargets map[state.NodeType]int `yaml:"spawnTargets"`

	Region          Rect    `yaml:"region"`
	MinNodeDistance float64 `yaml:"minNodeDistance"`
	SpawnAttempts   int     `yaml:"spawnAttempts"`

	// DegradeHourlyRate is the fraction of base yield lost per hour.
	DegradeHourlyRate float64 `yaml:"degradeHourlyRate"`

	// RarityValue scales credit rewards by node rarity.
	RarityValue map[state.Rarity]float64 `yaml:"rarityValue"`
	// RewardMultipliers scales credit rewards by mission kind.
	RewardMultipliers map[state.MissionKind]float64 `yaml:"rewardMultipliers"`
	// SalvageRates is the fraction of base yield a mission kind extracts.
	SalvageRates map[state.MissionKind]float64 `yaml:"salvageRates"`

	// VehicleSpeed is travel speed in world units per hour.
	VehicleSpeed       float64 `yaml:"vehicleSpeed"`
	MinMissionMinutes  int     `yaml:"minMissionMinutes"`
	StartingBalance    int64   `yaml:"startingBalance"`
	CreatureTarget     int     `yaml:"creatureTarget"`
	CreatureRoamRadius float64 `yaml:"creatureRoamRadius"`
}

// DefaultTables returns the built-in economy tables. A YAML document loaded
// via LoadTables fully replaces them.
func DefaultTables() Tables {
	return Tables{
		Yields: map[state.NodeType]map[state.Rarity]int64{
			state.NodeScrap: {state.RarityCommon: 50, state.RarityUncommon: 80, state.RarityRare: 130, state.RarityPristine: 220},
			state.NodeFuel:  {state.RarityCommon: 40, state.RarityUncommon: 65, state.RarityRare: 110, state.RarityPristine: 180},
			state.NodeAlloy: {state.RarityCommon: 30, state.RarityUncommon: 50, state.RarityRare: 90, state.RarityPristine: 150},
			state.NodeRelic: {state.RarityCommon: 15, state.RarityUncommon: 25, state.RarityRare: 45, state.RarityPristine: 80},
		},
		RarityWeights: map[state.Rarity]int{
			state.RarityCommon:   60,
			state.RarityUncommon: 25,
			state.RarityRare:     12,
			state.RarityPristine: 3,
		},
		SpawnTargets: map[state.NodeType]int{
			state.NodeScrap: 8,
			state.NodeFuel:  6,
			state.NodeAlloy: 4,
			state.NodeRelic: 2,
		},
		Region:          Rect{MinX: -1000, MinY: -1000, MaxX: 1000, MaxY: 1000},
		MinNodeDistance: 120,
		SpawnAttempts:   25,

		DegradeHourlyRate: 0.02,

		RarityValue: map[state.Rarity]float64{
			state.RarityCommon:   1,
			state.RarityUncommon: 1.5,
			state.RarityRare:     2.5,
			state.RarityPristine: 4,
		},
		RewardMultipliers: map[state.MissionKind]float64{
			state.MissionScavenge: 1,
			state.MissionSurvey:   0.6,
			state.MissionEscort:   1.4,
		},
		SalvageRates: map[state.MissionKind]float64{
			state.MissionScavenge: 0.5,
			state.MissionSurvey:   0.1,
			state.MissionEscort:   0,
		},

		VehicleSpeed:       180,
		MinMissionMinutes:  10,
		StartingBalance:    500,
		CreatureTarget:     10,
		CreatureRoamRadius: 400,
	}
}

// LoadTables reads the YAML tables document, falling back to the defaults
// when path is empty.
func LoadTables(path string) (Tables, error) {
	tables := DefaultTables()
	if path == "" {
		return tables, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read tables %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return Tables{}, fmt.Errorf("parse tables %s: %w", path, err)
	}
	if err := tables.Validate(); err != nil {
		return Tables{}, fmt.Errorf("tables %s: %w", path, err)
	}
	return tables, nil
}

// Validate rejects documents that would break spawn or reward computation.
func (t Tables) Validate() error {
	if len(t.RarityWeights) == 0 {
		return fmt.Errorf("rarityWeights must not be empty")
	}
	total := 0
	for _, weight := range t.RarityWeights {
		if weight < 0 {
			return fmt.Errorf("rarity weights must be non-negative")
		}
		total += weight
	}
	if total == 0 {
		return fmt.Errorf("rarity weights must sum above zero")
	}
	if t.Region.MaxX <= t.Region.MinX || t.Region.MaxY <= t.Region.MinY {
		return fmt.Errorf("spawn region is empty")
	}
	if t.DegradeHourlyRate < 0 {
		return fmt.Errorf("degradeHourlyRate must be non-negative")
	}
	if t.VehicleSpeed <= 0 {
		return fmt.Errorf("vehicleSpeed must be positive")
	}
	return nil
}
