package coordinator

import (
	"context"
	"sort"

	"rust-and-ruin/server/internal/domain"
	"rust-and-ruin/server/internal/mutate"
	"rust-and-ruin/server/internal/state"
)

// GetOrCreateAccount fetches an account profile, creating it lazily on first
// fetch. Every fetch counts as a login.
func (c *Coordinator) GetOrCreateAccount(ctx context.Context, accountID string) (*state.Account, error) {
	if accountID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "account id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getOrCreateAccountLocked(ctx, accountID)
}

func (c *Coordinator) getOrCreateAccountLocked(ctx context.Context, accountID string) (*state.Account, error) {
	account, outcome, err := mutate.Run(ctx, c.engine, "account.get_or_create",
		[]state.ID{state.Players}, mutate.Options{CorrelationID: accountID},
		func(draft, pristine *state.Slices) (*state.Account, *mutate.Plan, error) {
			account, ok := draft.Players[accountID]
			if !ok {
				account = &state.Account{
					ID:                accountID,
					Balance:           c.tables.StartingBalance,
					VehicleIDs:        []string{},
					DiscoveredNodeIDs: []string{},
					UpgradeIDs:        []string{},
					ActiveMissionIDs:  []string{},
				}
				draft.Players[accountID] = account
			}
			account.LastLogin = c.clock()
			return account, &mutate.Plan{Accounts: []string{accountID}}, nil
		})
	if err != nil {
		return nil, err
	}
	c.applyPlan(ctx, outcome.Plan)
	return account, nil
}

// Credit adds to an account balance and records the economic activity. The
// amount must be positive; a negative amount is rejected rather than
// reinterpreted as a debit.
func (c *Coordinator) Credit(ctx context.Context, accountID string, amount int64, reason string) (*state.Account, error) {
	if amount <= 0 {
		return nil, domain.E(domain.CodeInvalidArgument, "amount must be positive")
	}
	return c.adjustBalance(ctx, "account.credit", accountID, amount, reason)
}

// Debit removes from an account balance, rejecting overdrafts. The amount
// must be positive.
func (c *Coordinator) Debit(ctx context.Context, accountID string, amount int64, reason string) (*state.Account, error) {
	if amount <= 0 {
		return nil, domain.E(domain.CodeInvalidArgument, "amount must be positive")
	}
	return c.adjustBalance(ctx, "account.debit", accountID, -amount, reason)
}

func (c *Coordinator) adjustBalance(ctx context.Context, op, accountID string, delta int64, reason string) (*state.Account, error) {
	if accountID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "account id is required")
	}
	if delta == 0 {
		return nil, domain.E(domain.CodeInvalidArgument, "amount must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	account, outcome, err := mutate.Run(ctx, c.engine, op,
		[]state.ID{state.Players, state.WorldMetrics}, mutate.Options{CorrelationID: accountID},
		func(draft, pristine *state.Slices) (*state.Account, *mutate.Plan, error) {
			account, ok := draft.Players[accountID]
			if !ok {
				return nil, nil, domain.E(domain.CodeAccountNotFound, "account %s does not exist", accountID)
			}
			if account.Balance+delta < 0 {
				return nil, nil, domain.E(domain.CodeInsufficientFunds,
					"balance %d cannot cover %d", account.Balance, -delta)
			}
			account.Balance += delta
			moved := delta
			if moved < 0 {
				moved = -moved
			}
			draft.Metrics.EconomicActivity += moved
			draft.Metrics.UpdatedAt = c.clock()
			return account, &mutate.Plan{Accounts: []string{accountID}}, nil
		})
	if err != nil {
		return nil, err
	}
	c.applyPlan(ctx, outcome.Plan)
	return account, nil
}

// SyncVehicles refreshes the account's controlled-vehicle list from the
// ownership oracle and returns the updated profile.
func (c *Coordinator) SyncVehicles(ctx context.Context, accountID string) (*state.Account, error) {
	if accountID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "account id is required")
	}
	if c.oracle == nil {
		return nil, domain.E(domain.CodeInvalidArgument, "no vehicle oracle configured")
	}
	vehicles, err := c.oracle.ControlledVehicles(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sorted := make([]string, 0, len(vehicles))
	sorted = append(sorted, vehicles...)
	sort.Strings(sorted)

	c.mu.Lock()
	defer c.mu.Unlock()
	account, outcome, err := mutate.Run(ctx, c.engine, "account.sync_vehicles",
		[]state.ID{state.Players}, mutate.Options{CorrelationID: accountID},
		func(draft, pristine *state.Slices) (*state.Account, *mutate.Plan, error) {
			account, ok := draft.Players[accountID]
			if !ok {
				return nil, nil, domain.E(domain.CodeAccountNotFound, "account %s does not exist", accountID)
			}
			account.VehicleIDs = sorted
			return account, &mutate.Plan{Accounts: []string{accountID}}, nil
		})
	if err != nil {
		return nil, err
	}
	c.applyPlan(ctx, outcome.Plan)
	return account, nil
}
