// Package coordinator implements the single-writer actor owning all mutable
// game state. Every operation runs the full read-modify-write sequence under
// the coordinator mutex, so mutations against the world are serialized by
// construction.
package coordinator

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"rust-and-ruin/server/internal/config"
	"rust-and-ruin/server/internal/journal"
	"rust-and-ruin/server/internal/mutate"
	"rust-and-ruin/server/internal/protocol"
	"rust-and-ruin/server/internal/session"
	"rust-and-ruin/server/internal/state"
	"rust-and-ruin/server/internal/storage"
	"rust-and-ruin/server/logging"
)

// VehicleOracle reports which vehicle ids an account currently controls.
// It may serve cached, slightly stale data.
type VehicleOracle interface {
	ControlledVehicles(ctx context.Context, accountID string) ([]string, error)
}

// OracleFunc adapts a function to the VehicleOracle interface.
type OracleFunc func(ctx context.Context, accountID string) ([]string, error)

func (f OracleFunc) ControlledVehicles(ctx context.Context, accountID string) ([]string, error) {
	return f(ctx, accountID)
}

// Config wires a coordinator instance.
type Config struct {
	Store           storage.Store
	Logger          logging.Publisher
	Oracle          VehicleOracle
	Tables          config.Tables
	Clock           func() time.Time
	Seed            int64
	JournalCapacity int
}

// Coordinator is one world shard. All persisted slices are owned here and
// touched only through the mutation engine.
type Coordinator struct {
	mu       sync.Mutex
	engine   *mutate.Engine
	store    storage.Store
	registry *session.Registry
	journal  *journal.Journal
	tables   config.Tables
	oracle   VehicleOracle
	clock    func() time.Time
	rng      *rand.Rand
	log      logging.Publisher
}

func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopPublisher()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	j := journal.New(cfg.JournalCapacity)
	return &Coordinator{
		engine:   mutate.NewEngine(cfg.Store, logger, j, clock),
		store:    cfg.Store,
		registry: session.NewRegistry(logger, clock),
		journal:  j,
		tables:   cfg.Tables,
		oracle:   cfg.Oracle,
		clock:    clock,
		rng:      rand.New(rand.NewSource(seed)),
		log:      logger,
	}
}

// Registry exposes the session registry to the transport layer.
func (c *Coordinator) Registry() *session.Registry {
	return c.registry
}

// Journal exposes the mutation journal for diagnostics.
func (c *Coordinator) Journal() *journal.Journal {
	return c.journal
}

// Reset wipes every persisted slice. Operational/testing hook.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Reset(ctx); err != nil {
		return err
	}
	c.log.Publish(ctx, logging.Event{
		Type:     "world.reset",
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
	})
	c.applyPlan(ctx, mutate.WorldPlan())
	return nil
}

// WorldMetrics returns the aggregate world counters.
func (c *Coordinator) WorldMetrics(ctx context.Context) (state.Metrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slices, err := c.engine.Read(ctx, state.WorldMetrics)
	if err != nil {
		return state.Metrics{}, err
	}
	return *slices.Metrics, nil
}

// worldSnapshot builds the world_state push payload.
func (c *Coordinator) worldSnapshot(ctx context.Context) (protocol.WorldState, error) {
	slices, err := c.engine.Read(ctx, state.ResourceNodes, state.Missions, state.WorldMetrics)
	if err != nil {
		return protocol.WorldState{}, err
	}
	nodes := make([]*state.ResourceNode, 0, len(slices.ResourceNodes))
	for _, node := range slices.ResourceNodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	missions := make([]*state.Mission, 0)
	for _, mission := range slices.Missions {
		if mission.Status == state.MissionActive {
			missions = append(missions, mission)
		}
	}
	sort.Slice(missions, func(i, j int) bool { return missions[i].ID < missions[j].ID })

	return protocol.WorldState{
		ResourceNodes: nodes,
		Missions:      missions,
		WorldMetrics:  *slices.Metrics,
	}, nil
}

// playerSnapshot builds the player_state push payload for one account.
func (c *Coordinator) playerSnapshot(ctx context.Context, accountID string) (protocol.PlayerState, error) {
	slices, err := c.engine.Read(ctx, state.Players, state.Missions, state.ResourceNodes, state.Notifications)
	if err != nil {
		return protocol.PlayerState{}, err
	}
	snapshot := protocol.PlayerState{
		ActiveMissions:  make([]*state.Mission, 0),
		DiscoveredNodes: make([]*state.ResourceNode, 0),
		Notifications:   append([]state.Notification(nil), slices.Notifications[accountID]...),
	}
	account, ok := slices.Players[accountID]
	if !ok {
		return snapshot, nil
	}
	snapshot.Profile = account
	snapshot.Balance = account.Balance
	for _, missionID := range account.ActiveMissionIDs {
		if mission, ok := slices.Missions[missionID]; ok {
			snapshot.ActiveMissions = append(snapshot.ActiveMissions, mission)
		}
	}
	for _, nodeID := range account.DiscoveredNodeIDs {
		if node, ok := slices.ResourceNodes[nodeID]; ok {
			snapshot.DiscoveredNodes = append(snapshot.DiscoveredNodes, node)
		}
	}
	return snapshot, nil
}

// applyPlan executes a broadcast plan: a world refresh to world subscribers
// and per-account snapshots to each touched account's sessions. Push
// failures are logged; the read loop owns tearing down broken connections.
func (c *Coordinator) applyPlan(ctx context.Context, plan mutate.Plan) {
	if plan.Empty() {
		return
	}
	if plan.World {
		snapshot, err := c.worldSnapshot(ctx)
		if err != nil {
			c.logPushFailure(ctx, "world", err)
		} else {
			for _, sess := range c.registry.Subscribers("world_state") {
				if err := sess.Send(snapshot); err != nil {
					c.logPushFailure(ctx, sess.ID, err)
				}
			}
		}
	}
	for _, accountID := range plan.Accounts {
		snapshot, err := c.playerSnapshot(ctx, accountID)
		if err != nil {
			c.logPushFailure(ctx, accountID, err)
			continue
		}
		for _, sess := range c.registry.SessionsFor(accountID) {
			if err := sess.Send(snapshot); err != nil {
				c.logPushFailure(ctx, sess.ID, err)
			}
		}
	}
}

func (c *Coordinator) logPushFailure(ctx context.Context, target string, err error) {
	c.log.Publish(ctx, logging.Event{
		Type:     "broadcast.push_failed",
		Severity: logging.SeverityWarn,
		Category: logging.CategorySession,
		Actor:    logging.EntityRef{ID: target, Kind: logging.EntityKindSession},
		Payload:  map[string]any{"error": err.Error()},
	})
}
