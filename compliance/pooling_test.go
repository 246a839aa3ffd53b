package compliance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/compliance"
)

func members(pairs ...string) []compliance.MemberBalance {
	out := make([]compliance.MemberBalance, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, compliance.MemberBalance{ShipID: compliance.ShipID(pairs[i]), CBBefore: d(pairs[i+1])})
	}
	return out
}

func afterByShip(allocs []compliance.Allocation) map[compliance.ShipID]string {
	out := make(map[compliance.ShipID]string, len(allocs))
	for _, a := range allocs {
		out[a.ShipID] = a.CBAfter.String()
	}
	return out
}

// =============================================================================
// ALLOCATE
// =============================================================================

func TestAllocate_SingleDeficitTwoSurpluses(t *testing.T) {
	// GIVEN: A -200, B +150, C +100 (total +50)
	allocs, err := compliance.Allocate(2025, members("A", "-200", "B", "150", "C", "100"))

	// THEN: B is drained first, C keeps the remainder
	require.NoError(t, err)
	assert.Equal(t, map[compliance.ShipID]string{"A": "0", "B": "0", "C": "50"}, afterByShip(allocs))
}

func TestAllocate_TwoDeficitsTwoSurpluses(t *testing.T) {
	allocs, err := compliance.Allocate(2025, members("D1", "-100", "D2", "-50", "S1", "120", "S2", "40"))

	require.NoError(t, err)
	assert.Equal(t, map[compliance.ShipID]string{"D1": "0", "D2": "0", "S1": "0", "S2": "10"}, afterByShip(allocs))
}

func TestAllocate_PreservesInputOrder(t *testing.T) {
	allocs, err := compliance.Allocate(2025, members("S", "10", "D", "-5", "Z", "0"))

	require.NoError(t, err)
	require.Len(t, allocs, 3)
	assert.Equal(t, compliance.ShipID("S"), allocs[0].ShipID)
	assert.Equal(t, compliance.ShipID("D"), allocs[1].ShipID)
	assert.Equal(t, compliance.ShipID("Z"), allocs[2].ShipID)
	assertDecEqual(t, "5", allocs[0].CBAfter)
	assertDecEqual(t, "0", allocs[1].CBAfter)
	assertDecEqual(t, "0", allocs[2].CBAfter)
}

func TestAllocate_ZeroTotalIsAllowed(t *testing.T) {
	allocs, err := compliance.Allocate(2025, members("A", "-75.25", "B", "75.25"))

	require.NoError(t, err)
	for _, a := range allocs {
		assert.True(t, a.CBAfter.IsZero(), "%s ends at %s", a.ShipID, a.CBAfter)
	}
}

func TestAllocate_AllSurplusIsUnchanged(t *testing.T) {
	allocs, err := compliance.Allocate(2025, members("A", "10", "B", "20"))

	require.NoError(t, err)
	for _, a := range allocs {
		assert.True(t, a.CBAfter.Equal(a.CBBefore))
	}
}

func TestAllocate_NegativeTotalIsRejected(t *testing.T) {
	_, err := compliance.Allocate(2025, members("A", "-200", "B", "150"))

	require.Error(t, err)
	var totalErr *compliance.PoolTotalError
	require.ErrorAs(t, err, &totalErr)
	assertDecEqual(t, "-50", totalErr.Total)
	assert.Equal(t, 2025, totalErr.Year)
	assert.ErrorIs(t, err, compliance.ErrInvalidOperation)
}

func TestAllocate_EmptyIsRejected(t *testing.T) {
	_, err := compliance.Allocate(2025, nil)
	assert.ErrorIs(t, err, compliance.ErrInvalidOperation)
}

func TestAllocate_ConservesTotal(t *testing.T) {
	in := members("A", "-12.34", "B", "7.01", "C", "-0.99", "D", "20.5")

	allocs, err := compliance.Allocate(2025, in)
	require.NoError(t, err)

	before, after := d("0"), d("0")
	for _, a := range allocs {
		before = before.Add(a.CBBefore)
		after = after.Add(a.CBAfter)
	}
	assert.True(t, before.Equal(after), "before %s, after %s", before, after)
}

// =============================================================================
// EXIT SAFETY
// =============================================================================

func TestCheckExitSafety_DeficitExitingWorse(t *testing.T) {
	err := compliance.CheckExitSafety([]compliance.Allocation{
		{ShipID: "D", CBBefore: d("-10"), CBAfter: d("-11")},
	})

	var exitErr *compliance.ExitSafetyError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, compliance.ShipID("D"), exitErr.ShipID)
	assert.ErrorIs(t, err, compliance.ErrInvalidOperation)
}

func TestCheckExitSafety_SurplusExitingNegative(t *testing.T) {
	err := compliance.CheckExitSafety([]compliance.Allocation{
		{ShipID: "S", CBBefore: d("10"), CBAfter: d("-0.01")},
	})

	var exitErr *compliance.ExitSafetyError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, compliance.ShipID("S"), exitErr.ShipID)
}

func TestCheckExitSafety_AcceptsValidAllocations(t *testing.T) {
	assert.NoError(t, compliance.CheckExitSafety([]compliance.Allocation{
		{ShipID: "D", CBBefore: d("-10"), CBAfter: d("-4")},
		{ShipID: "S", CBBefore: d("10"), CBAfter: d("0")},
		{ShipID: "Z", CBBefore: d("0"), CBAfter: d("0")},
	}))
}

// =============================================================================
// CREATE POOL
// =============================================================================

func TestCreatePool_PersistsMembers(t *testing.T) {
	// GIVEN: one deficit and two surplus ships
	ctx := context.Background()
	s := newServices(t)
	s.setBalance(t, "A", 2025, "-200")
	s.setBalance(t, "B", 2025, "150")
	s.setBalance(t, "C", 2025, "100")

	// WHEN
	pool, err := s.pools.CreatePool(ctx, 2025, []compliance.ShipID{"A", "B", "C"})

	// THEN
	require.NoError(t, err)
	assert.NotEmpty(t, pool.ID)
	assert.Equal(t, 2025, pool.Year)
	require.Len(t, pool.Members, 3)
	for _, m := range pool.Members {
		assert.Equal(t, pool.ID, m.PoolID)
		assert.NotEmpty(t, m.ID)
	}
	assertDecEqual(t, "50", pool.TotalBefore())
	assertDecEqual(t, "50", pool.TotalAfter())

	stored, err := s.pools.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pool.ID, stored.ID)
	require.Len(t, stored.Members, 3)
	assertDecEqual(t, "0", stored.Members[0].CBAfter)
	assertDecEqual(t, "0", stored.Members[1].CBAfter)
	assertDecEqual(t, "50", stored.Members[2].CBAfter)
}

func TestCreatePool_UsesAdjustedBalances(t *testing.T) {
	// GIVEN: A is -100 in 2025 but banked 100 in 2024
	ctx := context.Background()
	s := newServices(t)
	s.setBalance(t, "A", 2025, "-100")
	s.setBalance(t, "B", 2025, "-20")
	require.NoError(t, s.store.AppendBankEntry(ctx, compliance.BankEntry{
		ID: "e1", ShipID: "A", Year: 2024, Kind: compliance.BankKindBanked, AmountGco2eq: d("130"),
	}))

	// WHEN
	pool, err := s.pools.CreatePool(ctx, 2025, []compliance.ShipID{"A", "B"})

	// THEN: A enters with +30 and covers B
	require.NoError(t, err)
	assertDecEqual(t, "30", pool.Members[0].CBBefore)
	assertDecEqual(t, "10", pool.Members[0].CBAfter)
	assertDecEqual(t, "0", pool.Members[1].CBAfter)
}

func TestCreatePool_NegativeTotalPersistsNothing(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	s.setBalance(t, "A", 2025, "-200")
	s.setBalance(t, "B", 2025, "150")

	_, err := s.pools.CreatePool(ctx, 2025, []compliance.ShipID{"A", "B"})

	assert.ErrorIs(t, err, compliance.ErrInvalidOperation)
	assert.Equal(t, 0, s.store.PoolCount())
}

func TestCreatePool_DuplicateShipIsRejected(t *testing.T) {
	s := newServices(t)
	s.setBalance(t, "A", 2025, "10")

	_, err := s.pools.CreatePool(context.Background(), 2025, []compliance.ShipID{"A", "A"})

	assert.ErrorIs(t, err, compliance.ErrInvalidOperation)
	assert.Equal(t, 0, s.store.PoolCount())
}

func TestCreatePool_EmptyIsRejected(t *testing.T) {
	s := newServices(t)
	_, err := s.pools.CreatePool(context.Background(), 2025, nil)
	assert.ErrorIs(t, err, compliance.ErrInvalidOperation)
}

func TestCreatePool_UnknownShipIsNotFound(t *testing.T) {
	s := newServices(t)
	s.setBalance(t, "A", 2025, "10")

	_, err := s.pools.CreatePool(context.Background(), 2025, []compliance.ShipID{"A", "GHOST"})

	assert.ErrorIs(t, err, compliance.ErrNotFound)
	assert.Equal(t, 0, s.store.PoolCount())
}

func TestGetPool_UnknownIsNotFound(t *testing.T) {
	s := newServices(t)
	_, err := s.pools.GetPool(context.Background(), "missing")

	var nf *compliance.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "pool", nf.Kind)
}
