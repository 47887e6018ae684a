package mutate

import "rust-and-ruin/server/internal/state"

// Plan describes the downstream synchronization work a mutation produced:
// a full world-state refresh, per-account snapshot pushes, or both.
type Plan struct {
	World    bool
	Accounts []string
}

func (p Plan) Empty() bool {
	return !p.World && len(p.Accounts) == 0
}

// Merge combines two plans, de-duplicating account ids.
func (p Plan) Merge(other Plan) Plan {
	merged := Plan{World: p.World || other.World}
	seen := make(map[string]struct{}, len(p.Accounts)+len(other.Accounts))
	for _, id := range append(append([]string(nil), p.Accounts...), other.Accounts...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged.Accounts = append(merged.Accounts, id)
	}
	return merged
}

func WorldPlan() Plan {
	return Plan{World: true}
}

func AccountPlan(ids ...string) Plan {
	return Plan{Accounts: ids}
}

// Mapper derives a plan from the changed-slice set when the mutation did not
// return one explicitly.
type Mapper func(changed []state.ID, after *state.Slices) Plan

// DefaultMapper flags world-affecting slices as requiring a full world
// refresh. Account-scoped slices produce no plan on their own because the
// changed set alone does not say which accounts were touched.
func DefaultMapper(changed []state.ID, after *state.Slices) Plan {
	var plan Plan
	for _, id := range changed {
		switch id {
		case state.ResourceNodes, state.Missions, state.WorldMetrics, state.Settlements, state.Creatures:
			plan.World = true
		}
	}
	return plan
}
