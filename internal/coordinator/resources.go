package coordinator

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"rust-and-ruin/server/internal/mutate"
	"rust-and-ruin/server/internal/state"
	"rust-and-ruin/server/logging"
)

// CycleSummary reports what one resource-management cycle did.
type CycleSummary struct {
	ElapsedHours  float64 `json:"elapsedHours"`
	DegradedUnits int64   `json:"degradedUnits"`
	RemovedNodes  int     `json:"removedNodes"`
	SpawnedNodes  int     `json:"spawnedNodes"`
	CulledBeasts  int     `json:"culledCreatures"`
	SpawnedBeasts int     `json:"spawnedCreatures"`
}

// ListResourceNodes returns every node currently in the world, sorted by id.
func (c *Coordinator) ListResourceNodes(ctx context.Context) ([]*state.ResourceNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slices, err := c.engine.Read(ctx, state.ResourceNodes)
	if err != nil {
		return nil, err
	}
	nodes := make([]*state.ResourceNode, 0, len(slices.ResourceNodes))
	for _, node := range slices.ResourceNodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// RunManagementCycle runs one degradation/removal/respawn pass. Also exposed
// as an operational hook.
func (c *Coordinator) RunManagementCycle(ctx context.Context) (CycleSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	summary, outcome, err := mutate.Run(ctx, c.engine, "resource.cycle",
		[]state.ID{state.ResourceNodes, state.WorldMetrics, state.Creatures},
		mutate.Options{},
		func(draft, pristine *state.Slices) (CycleSummary, *mutate.Plan, error) {
			summary := CycleSummary{}

			hours := 0.0
			if !draft.Metrics.UpdatedAt.IsZero() {
				hours = now.Sub(draft.Metrics.UpdatedAt).Hours()
				if hours < 0 {
					hours = 0
				}
			}
			summary.ElapsedHours = hours

			for _, node := range draft.ResourceNodes {
				if !node.Active {
					continue
				}
				amount := int64(float64(node.BaseYield) * c.tables.DegradeHourlyRate * hours)
				// Floor of one unit per cycle so active nodes always trend
				// toward zero, even across very short windows.
				if amount < 1 {
					amount = 1
				}
				if amount > node.CurrentYield {
					amount = node.CurrentYield
				}
				node.CurrentYield -= amount
				node.Depleted += amount
				summary.DegradedUnits += amount
				if node.CurrentYield == 0 {
					node.Active = false
				}
			}

			for id, node := range draft.ResourceNodes {
				if node.CurrentYield == 0 {
					delete(draft.ResourceNodes, id)
					summary.RemovedNodes++
				}
			}

			for _, nodeType := range state.NodeTypes() {
				target := c.tables.SpawnTargets[nodeType]
				active := 0
				for _, node := range draft.ResourceNodes {
					if node.Type == nodeType && node.Active {
						active++
					}
				}
				for active < target {
					node := c.spawnNode(nodeType, draft.ResourceNodes, now)
					draft.ResourceNodes[node.ID] = node
					summary.SpawnedNodes++
					active++
				}
			}

			summary.CulledBeasts = c.cullCreatures(draft)
			summary.SpawnedBeasts = c.spawnCreatures(draft, now)

			draft.Metrics.UpdatedAt = now
			return summary, &mutate.Plan{World: true}, nil
		})
	if err != nil {
		return CycleSummary{}, err
	}

	c.log.Publish(ctx, logging.Event{
		Type:     "resource.cycle_completed",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryResource,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Payload:  summary,
	})
	c.applyPlan(ctx, outcome.Plan)
	return summary, nil
}

// RunManagementLoop drives the degradation cycle until the stop channel
// closes. The timer re-arms itself relative to each run's start, so a late
// wake-up does not push the schedule further out; the cycle itself corrects
// for drift by computing elapsed hours from the recorded update time.
func (c *Coordinator) RunManagementLoop(stop <-chan struct{}, period time.Duration) {
	if period <= 0 {
		period = 10 * time.Minute
	}
	timer := time.NewTimer(period)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			started := c.clock()
			if _, err := c.RunManagementCycle(context.Background()); err != nil {
				c.log.Publish(context.Background(), logging.Event{
					Type:     "resource.cycle_failed",
					Severity: logging.SeverityError,
					Category: logging.CategoryResource,
					Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
					Payload:  map[string]any{"error": err.Error()},
				})
			}
			delay := started.Add(period).Sub(c.clock())
			if delay < time.Second {
				delay = time.Second
			}
			timer.Reset(delay)
		}
	}
}

// applyHarvest subtracts up to amount from the node, flipping it inactive
// when exhausted. Returns true when the node was depleted by this harvest.
func (c *Coordinator) applyHarvest(node *state.ResourceNode, amount int64, now time.Time) bool {
	if amount > node.CurrentYield {
		amount = node.CurrentYield
	}
	node.CurrentYield -= amount
	node.Depleted += amount
	node.LastHarvested = now
	if node.CurrentYield == 0 && node.Active {
		node.Active = false
		return true
	}
	return false
}

// spawnNode places one replacement node: uniform draw inside the configured
// region with bounded retries to stay clear of existing active nodes,
// falling back to the last sampled point.
func (c *Coordinator) spawnNode(nodeType state.NodeType, nodes map[string]*state.ResourceNode, now time.Time) *state.ResourceNode {
	x, y := c.sampleNodePosition(nodes)
	rarity := c.drawRarity()
	yield := c.tables.Yields[nodeType][rarity]
	if yield <= 0 {
		yield = 1
	}
	return &state.ResourceNode{
		ID:           uuid.NewString(),
		Type:         nodeType,
		X:            x,
		Y:            y,
		BaseYield:    yield,
		CurrentYield: yield,
		Rarity:       rarity,
		Active:       true,
	}
}

func (c *Coordinator) sampleNodePosition(nodes map[string]*state.ResourceNode) (float64, float64) {
	region := c.tables.Region
	attempts := c.tables.SpawnAttempts
	if attempts <= 0 {
		attempts = 25
	}
	var x, y float64
	for i := 0; i < attempts; i++ {
		x = region.MinX + c.rng.Float64()*(region.MaxX-region.MinX)
		y = region.MinY + c.rng.Float64()*(region.MaxY-region.MinY)
		if c.clearOfActiveNodes(nodes, x, y) {
			return x, y
		}
	}
	return x, y
}

func (c *Coordinator) clearOfActiveNodes(nodes map[string]*state.ResourceNode, x, y float64) bool {
	minDistance := c.tables.MinNodeDistance
	if minDistance <= 0 {
		return true
	}
	for _, node := range nodes {
		if !node.Active {
			continue
		}
		if math.Hypot(node.X-x, node.Y-y) < minDistance {
			return false
		}
	}
	return true
}

// drawRarity is a weighted draw over the configured distribution, iterated
// in fixed tier order so the same seed always produces the same sequence.
func (c *Coordinator) drawRarity() state.Rarity {
	order := []state.Rarity{state.RarityCommon, state.RarityUncommon, state.RarityRare, state.RarityPristine}
	total := 0
	for _, rarity := range order {
		total += c.tables.RarityWeights[rarity]
	}
	if total <= 0 {
		return state.RarityCommon
	}
	roll := c.rng.Intn(total)
	for _, rarity := range order {
		roll -= c.tables.RarityWeights[rarity]
		if roll < 0 {
			return rarity
		}
	}
	return state.RarityCommon
}

var creatureKinds = []string{"dust-stalker", "rustwing", "glasshound"}

// cullCreatures removes creatures stranded far from every active node.
func (c *Coordinator) cullCreatures(draft *state.Slices) int {
	radius := c.tables.CreatureRoamRadius
	if radius <= 0 || len(draft.ResourceNodes) == 0 {
		return 0
	}
	culled := 0
	for id, creature := range draft.Creatures {
		near := false
		for _, node := range draft.ResourceNodes {
			if node.Active && math.Hypot(node.X-creature.X, node.Y-creature.Y) <= radius {
				near = true
				break
			}
		}
		if !near {
			delete(draft.Creatures, id)
			culled++
		}
	}
	return culled
}

// spawnCreatures tops the population up to the configured target, placing
// newcomers near a random active node.
func (c *Coordinator) spawnCreatures(draft *state.Slices, now time.Time) int {
	target := c.tables.CreatureTarget
	if target <= 0 {
		return 0
	}
	var anchors []*state.ResourceNode
	for _, node := range draft.ResourceNodes {
		if node.Active {
			anchors = append(anchors, node)
		}
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].ID < anchors[j].ID })

	spawned := 0
	for len(draft.Creatures) < target {
		var x, y float64
		if len(anchors) > 0 {
			anchor := anchors[c.rng.Intn(len(anchors))]
			spread := c.tables.CreatureRoamRadius / 2
			if spread <= 0 {
				spread = 100
			}
			x = anchor.X + (c.rng.Float64()*2-1)*spread
			y = anchor.Y + (c.rng.Float64()*2-1)*spread
		} else {
			region := c.tables.Region
			x = region.MinX + c.rng.Float64()*(region.MaxX-region.MinX)
			y = region.MinY + c.rng.Float64()*(region.MaxY-region.MinY)
		}
		creature := &state.Creature{
			ID:        uuid.NewString(),
			Kind:      creatureKinds[c.rng.Intn(len(creatureKinds))],
			X:         x,
			Y:         y,
			SpawnedAt: now,
		}
		draft.Creatures[creature.ID] = creature
		spawned++
	}
	return spawned
}
