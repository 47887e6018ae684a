package coordinator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"rust-and-ruin/server/internal/domain"
	"rust-and-ruin/server/internal/mutate"
	"rust-and-ruin/server/internal/protocol"
	"rust-and-ruin/server/internal/state"
	"rust-and-ruin/server/logging"
)

// StartMission validates and persists a new mission. The exclusivity
// invariant is global: a vehicle on any account's active mission cannot be
// committed again.
func (c *Coordinator) StartMission(ctx context.Context, accountID string, vehicleIDs []string, nodeID string, kind state.MissionKind) (*state.Mission, error) {
	if accountID == "" || nodeID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "account id and node id are required")
	}
	if len(vehicleIDs) == 0 {
		return nil, domain.E(domain.CodeInvalidArgument, "at least one vehicle is required")
	}
	requested := make(map[string]struct{}, len(vehicleIDs))
	for _, id := range vehicleIDs {
		if _, dup := requested[id]; dup {
			return nil, domain.E(domain.CodeInvalidArgument, "vehicle %s is listed more than once", id)
		}
		requested[id] = struct{}{}
	}
	switch kind {
	case state.MissionScavenge, state.MissionSurvey, state.MissionEscort:
	default:
		return nil, domain.E(domain.CodeInvalidArgument, "unknown mission kind %q", kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	mission, outcome, err := mutate.Run(ctx, c.engine, "mission.start",
		[]state.ID{state.Players, state.Missions, state.ResourceNodes, state.WorldMetrics},
		mutate.Options{CorrelationID: accountID},
		func(draft, pristine *state.Slices) (*state.Mission, *mutate.Plan, error) {
			account, ok := draft.Players[accountID]
			if !ok {
				return nil, nil, domain.E(domain.CodeAccountNotFound, "account %s does not exist", accountID)
			}
			controlled := make(map[string]struct{}, len(account.VehicleIDs))
			for _, id := range account.VehicleIDs {
				controlled[id] = struct{}{}
			}
			for _, id := range vehicleIDs {
				if _, ok := controlled[id]; !ok {
					return nil, nil, domain.E(domain.CodeVehicleNotControlled,
						"vehicle %s is not controlled by account %s", id, accountID)
				}
			}
			for _, existing := range draft.Missions {
				if existing.Status != state.MissionActive {
					continue
				}
				for _, busy := range existing.VehicleIDs {
					for _, requested := range vehicleIDs {
						if busy == requested {
							return nil, nil, domain.E(domain.CodeVehicleBusy,
								"vehicle %s is already on another mission", requested)
						}
					}
				}
			}
			node, ok := draft.ResourceNodes[nodeID]
			if !ok || !node.Active {
				return nil, nil, domain.E(domain.CodeNodeNotFound, "resource node %s does not exist", nodeID)
			}

			duration := c.missionDuration(node, len(vehicleIDs))
			mission := &state.Mission{
				ID:          uuid.NewString(),
				AccountID:   accountID,
				VehicleIDs:  append([]string(nil), vehicleIDs...),
				NodeID:      nodeID,
				StartedAt:   now,
				CompletesAt: now.Add(duration),
				Status:      state.MissionActive,
				Kind:        kind,
				Reward:      c.missionReward(node, kind, duration),
			}
			draft.Missions[mission.ID] = mission
			account.ActiveMissionIDs = append(account.ActiveMissionIDs, mission.ID)
			if !contains(account.DiscoveredNodeIDs, nodeID) {
				account.DiscoveredNodeIDs = append(account.DiscoveredNodeIDs, nodeID)
			}
			draft.Metrics.ActiveMissions++
			draft.Metrics.UpdatedAt = now
			return mission, &mutate.Plan{World: true, Accounts: []string{accountID}}, nil
		})
	if err != nil {
		return nil, err
	}

	c.log.Publish(ctx, logging.Event{
		Type:     "mission.started",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMission,
		Actor:    logging.EntityRef{ID: accountID, Kind: logging.EntityKindAccount},
		Targets:  []logging.EntityRef{{ID: mission.ID, Kind: logging.EntityKindMission}},
		Payload:  map[string]any{"kind": mission.Kind, "nodeId": mission.NodeID, "vehicles": len(mission.VehicleIDs)},
	})
	c.applyPlan(ctx, outcome.Plan)
	c.pushMissionUpdate(accountID, mission, "started")
	return mission, nil
}

// CompleteMission flips an active mission to its terminal state and applies
// the reward bundle. Force bypasses only the completion-time check.
func (c *Coordinator) CompleteMission(ctx context.Context, missionID string, force bool) (*state.Mission, error) {
	if missionID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "mission id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	type completion struct {
		mission *state.Mission
		notes   []state.Notification
	}

	result, outcome, err := mutate.Run(ctx, c.engine, "mission.complete",
		[]state.ID{
			state.Players, state.Missions, state.ResourceNodes, state.WorldMetrics,
			state.Notifications, state.Progression, state.Contributions, state.Settlements,
		},
		mutate.Options{CorrelationID: missionID},
		func(draft, pristine *state.Slices) (completion, *mutate.Plan, error) {
			mission, ok := draft.Missions[missionID]
			if !ok {
				return completion{}, nil, domain.E(domain.CodeMissionNotFound, "mission %s does not exist", missionID)
			}
			if mission.Status != state.MissionActive {
				return completion{}, nil, domain.E(domain.CodeMissionNotActive, "mission %s is not active", missionID)
			}
			if !force && now.Before(mission.CompletesAt) {
				return completion{}, nil, domain.E(domain.CodeMissionIncomplete,
					"mission %s completes at %s", missionID, mission.CompletesAt.Format(time.RFC3339))
			}

			account, ok := draft.Players[mission.AccountID]
			if !ok {
				return completion{}, nil, domain.E(domain.CodeAccountNotFound, "account %s does not exist", mission.AccountID)
			}

			account.Balance += mission.Reward.Credits
			account.ActiveMissionIDs = remove(account.ActiveMissionIDs, mission.ID)

			var notes []state.Notification
			if node, ok := draft.ResourceNodes[mission.NodeID]; ok && mission.Reward.Salvage > 0 {
				if depleted := c.applyHarvest(node, mission.Reward.Salvage, now); depleted {
					notes = append(notes, c.queueNotification(draft, mission.AccountID, "node_depleted",
						"Node depleted", fmt.Sprintf("Resource node %s is exhausted.", node.ID), now))
				}
			}

			mission.Status = state.MissionCompleted
			mission.CompletedAt = now

			draft.Metrics.ActiveMissions--
			draft.Metrics.CompletedMissions++
			draft.Metrics.EconomicActivity += mission.Reward.Credits
			draft.Metrics.UpdatedAt = now

			c.applyProgression(draft, mission)
			c.applyContribution(draft, mission)

			notes = append(notes, c.queueNotification(draft, mission.AccountID, "mission_completed",
				"Mission complete", fmt.Sprintf("Your %s mission paid out %d credits.", mission.Kind, mission.Reward.Credits), now))

			return completion{mission: mission, notes: notes},
				&mutate.Plan{World: true, Accounts: []string{mission.AccountID}}, nil
		})
	if err != nil {
		return nil, err
	}
	mission := result.mission

	c.log.Publish(ctx, logging.Event{
		Type:     "mission.completed",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMission,
		Actor:    logging.EntityRef{ID: mission.AccountID, Kind: logging.EntityKindAccount},
		Targets:  []logging.EntityRef{{ID: mission.ID, Kind: logging.EntityKindMission}},
		Payload:  map[string]any{"credits": mission.Reward.Credits, "salvage": mission.Reward.Salvage, "forced": force},
	})
	c.applyPlan(ctx, outcome.Plan)
	c.pushMissionUpdate(mission.AccountID, mission, "completed")
	for _, note := range result.notes {
		c.registry.Deliver(ctx, mission.AccountID, note)
	}
	return mission, nil
}

// GetMission returns one mission by id.
func (c *Coordinator) GetMission(ctx context.Context, missionID string) (*state.Mission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slices, err := c.engine.Read(ctx, state.Missions)
	if err != nil {
		return nil, err
	}
	mission, ok := slices.Missions[missionID]
	if !ok {
		return nil, domain.E(domain.CodeMissionNotFound, "mission %s does not exist", missionID)
	}
	return mission, nil
}

// ListAccountMissions returns every mission referenced by the account's
// active list plus its completed history. Dangling references are a
// data-integrity anomaly: logged, stripped from the active list, persisted.
func (c *Coordinator) ListAccountMissions(ctx context.Context, accountID string) ([]*state.Mission, error) {
	if accountID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "account id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	missions, _, err := mutate.Run(ctx, c.engine, "mission.list_account",
		[]state.ID{state.Players, state.Missions},
		mutate.Options{CorrelationID: accountID},
		func(draft, pristine *state.Slices) ([]*state.Mission, *mutate.Plan, error) {
			account, ok := draft.Players[accountID]
			if !ok {
				return nil, nil, domain.E(domain.CodeAccountNotFound, "account %s does not exist", accountID)
			}
			kept := account.ActiveMissionIDs[:0]
			for _, missionID := range account.ActiveMissionIDs {
				if _, ok := draft.Missions[missionID]; !ok {
					c.log.Publish(ctx, logging.Event{
						Type:     "mission.orphan_repaired",
						Severity: logging.SeverityWarn,
						Category: logging.CategoryMission,
						Actor:    logging.EntityRef{ID: accountID, Kind: logging.EntityKindAccount},
						Targets:  []logging.EntityRef{{ID: missionID, Kind: logging.EntityKindMission}},
					})
					continue
				}
				kept = append(kept, missionID)
			}
			account.ActiveMissionIDs = kept

			var missions []*state.Mission
			for _, mission := range draft.Missions {
				if mission.AccountID == accountID {
					missions = append(missions, mission)
				}
			}
			sort.Slice(missions, func(i, j int) bool {
				return missions[i].StartedAt.Before(missions[j].StartedAt)
			})
			return missions, &mutate.Plan{}, nil
		})
	if err != nil {
		return nil, err
	}
	return missions, nil
}

// ListActiveMissions returns every active mission in the world.
func (c *Coordinator) ListActiveMissions(ctx context.Context) ([]*state.Mission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slices, err := c.engine.Read(ctx, state.Missions)
	if err != nil {
		return nil, err
	}
	missions := make([]*state.Mission, 0)
	for _, mission := range slices.Missions {
		if mission.Status == state.MissionActive {
			missions = append(missions, mission)
		}
	}
	sort.Slice(missions, func(i, j int) bool { return missions[i].ID < missions[j].ID })
	return missions, nil
}

// missionDuration derives the travel-plus-site time from node distance and
// team composition. Bigger crews clear the site faster; travel is fixed.
func (c *Coordinator) missionDuration(node *state.ResourceNode, vehicles int) time.Duration {
	distance := math.Hypot(node.X, node.Y)
	travelHours := 2 * distance / c.tables.VehicleSpeed
	crew := 1 + 0.15*float64(vehicles-1)
	siteHours := 0.5 / crew
	duration := time.Duration((travelHours + siteHours) * float64(time.Hour))
	minimum := time.Duration(c.tables.MinMissionMinutes) * time.Minute
	if duration < minimum {
		duration = minimum
	}
	return duration
}

// missionReward computes the bundle from node properties, mission kind, and
// duration. Longer runs pay a small premium.
func (c *Coordinator) missionReward(node *state.ResourceNode, kind state.MissionKind, duration time.Duration) state.Reward {
	rarity := c.tables.RarityValue[node.Rarity]
	if rarity == 0 {
		rarity = 1
	}
	mult := c.tables.RewardMultipliers[kind]
	if mult == 0 {
		mult = 1
	}
	hours := duration.Hours()
	credits := int64(math.Round(float64(node.CurrentYield) * rarity * mult * (1 + 0.1*hours)))
	salvage := int64(math.Round(float64(node.BaseYield) * c.tables.SalvageRates[kind]))
	if salvage > node.CurrentYield {
		salvage = node.CurrentYield
	}
	xp := int64(math.Round(duration.Minutes())) + salvage/2
	return state.Reward{Credits: credits, Salvage: salvage, XP: xp}
}

func (c *Coordinator) applyProgression(draft *state.Slices, mission *state.Mission) {
	progress, ok := draft.Progression[mission.AccountID]
	if !ok {
		progress = &state.AccountProgression{AccountID: mission.AccountID, Level: 1}
		draft.Progression[mission.AccountID] = progress
	}
	progress.XP += mission.Reward.XP
	progress.Level = 1 + int(progress.XP/1000)
}

func (c *Coordinator) applyContribution(draft *state.Slices, mission *state.Mission) {
	if mission.Kind != state.MissionScavenge || mission.Reward.Salvage == 0 {
		return
	}
	contribution, ok := draft.Contributions[mission.AccountID]
	if !ok {
		contribution = &state.Contribution{AccountID: mission.AccountID}
		draft.Contributions[mission.AccountID] = contribution
	}
	contribution.Salvage += mission.Reward.Salvage
	contribution.Deliveries++
	if home, ok := draft.Settlements[state.HomeSettlementID]; ok {
		home.Stockpile += mission.Reward.Salvage
	}
}

func (c *Coordinator) pushMissionUpdate(accountID string, mission *state.Mission, event string) {
	update := protocol.MissionUpdate{Mission: mission, Event: event}
	for _, sess := range c.registry.SessionsFor(accountID) {
		if err := sess.Send(update); err != nil {
			c.logPushFailure(context.Background(), sess.ID, err)
		}
	}
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
