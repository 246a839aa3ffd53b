/*
pooling.go - Pool allocator

PURPOSE:
  Forms a compliance pool for one year: surplus ships cover deficit ships so
  that, after pooling, the pool as a whole is compliant.

ALGORITHM (greedy, single pass):
  1. Reject an empty membership or a repeated ship.
  2. cbBefore = adjusted balance of each ship.
  3. Reject when Σ cbBefore < 0. A pool cannot launder a net deficit.
  4. Walk deficits in input order. For each, walk surpluses in input order
     and move min(shortfall, remaining surplus) until the shortfall is 0.
  5. Exit checks on every member:
     - a deficit ship never ends below where it started
     - a surplus ship never ends negative

DETERMINISM:
  Ties are broken purely by input order. The result is deterministic but
  not the only valid allocation.

  Because transfers only move surplus into an exact shortfall and step 3
  guarantees enough surplus exists, the exit checks cannot fail for this
  algorithm. They guard the conservation property against future changes.

ATOMICITY:
  The pool and its members are handed to PoolStore.SavePool in one call.
  Nothing is written when any step fails.
*/
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MemberBalance is one pool candidate before allocation.
type MemberBalance struct {
	ShipID   ShipID
	CBBefore decimal.Decimal
}

// Allocation is one member after allocation.
type Allocation struct {
	ShipID   ShipID
	CBBefore decimal.Decimal
	CBAfter  decimal.Decimal
}

// Allocate runs the greedy redistribution and the exit checks.
// The result is in input order.
func Allocate(year int, members []MemberBalance) ([]Allocation, error) {
	if len(members) == 0 {
		return nil, invalidf("pool must have at least one member")
	}

	total := decimal.Zero
	for _, m := range members {
		total = total.Add(m.CBBefore)
	}
	if total.IsNegative() {
		return nil, &PoolTotalError{Year: year, Total: total}
	}

	// Running balances, indexed like members.
	running := make([]decimal.Decimal, len(members))
	var deficits, surpluses []int
	for i, m := range members {
		running[i] = m.CBBefore
		switch {
		case m.CBBefore.IsNegative():
			deficits = append(deficits, i)
		case m.CBBefore.IsPositive():
			surpluses = append(surpluses, i)
		}
	}

	for _, d := range deficits {
		shortfall := members[d].CBBefore.Neg()
		for _, s := range surpluses {
			if !shortfall.IsPositive() {
				break
			}
			available := running[s]
			if !available.IsPositive() {
				continue
			}
			transfer := decimal.Min(shortfall, available)
			running[s] = running[s].Sub(transfer)
			running[d] = running[d].Add(transfer)
			shortfall = shortfall.Sub(transfer)
		}
	}

	allocs := make([]Allocation, len(members))
	for i, m := range members {
		allocs[i] = Allocation{ShipID: m.ShipID, CBBefore: m.CBBefore, CBAfter: running[i]}
	}
	if err := CheckExitSafety(allocs); err != nil {
		return nil, err
	}
	return allocs, nil
}

// CheckExitSafety verifies no member leaves the pool worse off than allowed.
func CheckExitSafety(allocs []Allocation) error {
	for _, a := range allocs {
		if a.CBBefore.IsNegative() && a.CBAfter.LessThan(a.CBBefore) {
			return &ExitSafetyError{ShipID: a.ShipID, CBBefore: a.CBBefore, CBAfter: a.CBAfter,
				Reason: "deficit ship cannot exit worse"}
		}
		if a.CBBefore.IsPositive() && a.CBAfter.IsNegative() {
			return &ExitSafetyError{ShipID: a.ShipID, CBBefore: a.CBBefore, CBAfter: a.CBAfter,
				Reason: "surplus ship cannot exit negative"}
		}
	}
	return nil
}

// PoolAllocator builds and persists pools.
type PoolAllocator struct {
	Store    PoolStore
	Balances BalanceSource
	Logger   zerolog.Logger

	Now   func() time.Time
	NewID func() string
}

func NewPoolAllocator(store PoolStore, balances BalanceSource, logger zerolog.Logger) *PoolAllocator {
	return &PoolAllocator{
		Store:    store,
		Balances: balances,
		Logger:   logger.With().Str("component", "pool_allocator").Logger(),
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// CreatePool fetches adjusted balances, allocates and persists the pool.
func (p *PoolAllocator) CreatePool(ctx context.Context, year int, shipIDs []ShipID) (Pool, error) {
	if len(shipIDs) == 0 {
		return Pool{}, invalidf("pool must have at least one member")
	}

	seen := make(map[ShipID]bool, len(shipIDs))
	members := make([]MemberBalance, 0, len(shipIDs))
	for _, id := range shipIDs {
		if seen[id] {
			return Pool{}, invalidf("ship %s listed twice in pool", id)
		}
		seen[id] = true

		adjusted, err := p.Balances.GetAdjustedComplianceBalance(ctx, id, year)
		if err != nil {
			return Pool{}, err
		}
		members = append(members, MemberBalance{ShipID: id, CBBefore: adjusted.CBGco2eq})
	}

	allocs, err := Allocate(year, members)
	if err != nil {
		return Pool{}, err
	}

	pool := Pool{
		ID:        PoolID(p.NewID()),
		Year:      year,
		CreatedAt: p.Now(),
		Members:   make([]PoolMember, len(allocs)),
	}
	for i, a := range allocs {
		pool.Members[i] = PoolMember{
			ID:       EntryID(p.NewID()),
			PoolID:   pool.ID,
			ShipID:   a.ShipID,
			CBBefore: a.CBBefore,
			CBAfter:  a.CBAfter,
		}
	}

	if err := p.Store.SavePool(ctx, pool); err != nil {
		return Pool{}, fmt.Errorf("save pool: %w", err)
	}

	p.Logger.Info().
		Str("pool_id", string(pool.ID)).
		Int("year", year).
		Int("members", len(pool.Members)).
		Str("total_gco2eq", pool.TotalAfter().StringFixed(2)).
		Msg("pool created")
	return pool, nil
}

// GetPool loads a stored pool.
func (p *PoolAllocator) GetPool(ctx context.Context, id PoolID) (Pool, error) {
	pool, err := p.Store.FindPool(ctx, id)
	if err != nil {
		return Pool{}, fmt.Errorf("load pool %s: %w", id, err)
	}
	if pool == nil {
		return Pool{}, &NotFoundError{Kind: "pool", Key: string(id)}
	}
	return *pool, nil
}
