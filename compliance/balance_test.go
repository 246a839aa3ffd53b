package compliance_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/compliance/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type services struct {
	store   *store.Memory
	engine  *compliance.BalanceEngine
	ledger  *compliance.BankingLedger
	pools   *compliance.PoolAllocator
	catalog *compliance.RouteCatalog
}

func newServices(t *testing.T) services {
	t.Helper()
	mem := store.NewMemory()
	logger := zerolog.Nop()
	engine := compliance.NewBalanceEngine(mem, mem, mem, compliance.DefaultSettings(), logger)
	ledger := compliance.NewBankingLedger(mem, engine, logger)
	ledger.Now = func() time.Time { return time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC) }
	return services{
		store:   mem,
		engine:  engine,
		ledger:  ledger,
		pools:   compliance.NewPoolAllocator(mem, engine, logger),
		catalog: compliance.NewRouteCatalog(mem, engine),
	}
}

func (s services) addRoute(t *testing.T, r compliance.Route) {
	t.Helper()
	_, err := s.catalog.CreateRoute(context.Background(), r)
	require.NoError(t, err)
}

func (s services) setBalance(t *testing.T, ship string, year int, cb string) {
	t.Helper()
	require.NoError(t, s.store.SaveBalance(context.Background(), compliance.ComplianceBalance{
		ShipID: compliance.ShipID(ship), Year: year, CBGco2eq: d(cb),
	}))
}

// hfoRoute is 12000 t of HFO: actual 90 gCO2e/MJ, above target.
func hfoRoute(id string) compliance.Route {
	return compliance.Route{
		RouteID:          id,
		VesselType:       "Container",
		FuelType:         "HFO",
		Year:             2024,
		GHGIntensity:     d("91.05"),
		FuelConsumption:  d("12000"),
		WindFactor:       d("1"),
		FuelCompositions: []compliance.FuelComposition{fuel("HFO", "12000", "15", "40", "75")},
	}
}

// lngRoute is 8000 t of LNG with 3% slip: actual 76.65 gCO2e/MJ.
func lngRoute(id string) compliance.Route {
	return compliance.Route{
		RouteID:          id,
		VesselType:       "BulkCarrier",
		FuelType:         "LNG",
		Year:             2024,
		GHGIntensity:     d("88.04"),
		FuelConsumption:  d("8000"),
		WindFactor:       d("1"),
		FuelCompositions: []compliance.FuelComposition{withSlip(fuel("LNG", "8000", "20", "48", "55"), "0.03")},
	}
}

// scalarRoute has no fuel compositions and takes the stored-intensity path.
func scalarRoute(id string, intensity, consumption string) compliance.Route {
	return compliance.Route{
		RouteID:         id,
		VesselType:      "Tanker",
		FuelType:        "MGO",
		Year:            2024,
		GHGIntensity:    d(intensity),
		FuelConsumption: d(consumption),
	}
}

// =============================================================================
// BASE BALANCE
// =============================================================================

func TestBalance_DeficitAboveTarget(t *testing.T) {
	// GIVEN: HFO route at 90 gCO2e/MJ over 4.8e8 MJ
	s := newServices(t)
	s.addRoute(t, hfoRoute("R001"))

	// WHEN
	cb, err := s.engine.GetComplianceBalance(context.Background(), "R001", 2024)

	// THEN: (89.3368 - 90) × 480000000
	require.NoError(t, err)
	assertDecEqual(t, "-318336000", cb.CBGco2eq)
	assert.True(t, cb.IsDeficit())
}

func TestBalance_ZeroWindFactorReadsAsOne(t *testing.T) {
	// GIVEN: a route written straight to the store with no wind factor
	s := newServices(t)
	route := hfoRoute("R001")
	route.ID = "direct"
	route.WindFactor = decimal.Zero
	require.NoError(t, s.store.SaveRoute(context.Background(), route))

	// WHEN
	cb, err := s.engine.GetComplianceBalance(context.Background(), "R001", 2024)

	// THEN: same deficit as with a wind factor of 1
	require.NoError(t, err)
	assertDecEqual(t, "-318336000", cb.CBGco2eq)

	b, err := s.engine.Evaluate(route)
	require.NoError(t, err)
	assertDecEqual(t, "90", b.Actual)
}

func TestBalance_SurplusBelowTarget(t *testing.T) {
	s := newServices(t)
	s.addRoute(t, lngRoute("R002"))

	cb, err := s.engine.GetComplianceBalance(context.Background(), "R002", 2024)

	// (89.3368 - 76.65) × 384000000
	require.NoError(t, err)
	assertDecEqual(t, "4871731200", cb.CBGco2eq)
	assert.True(t, cb.IsSurplus())
}

func TestBalance_FallbackUsesStoredIntensity(t *testing.T) {
	// GIVEN: no fuel compositions, stored 80 gCO2e/MJ, 10 t consumed
	s := newServices(t)
	s.addRoute(t, scalarRoute("S2", "80", "10"))

	cb, err := s.engine.GetComplianceBalance(context.Background(), "S2", 2025)

	// THEN: energy = 10 × 41000, cb = 9.3368 × 410000
	require.NoError(t, err)
	assertDecEqual(t, "3828088", cb.CBGco2eq)
}

func TestBalance_TargetIsConfigurable(t *testing.T) {
	s := newServices(t)
	s.engine.Settings.TargetIntensity = d("100")
	s.addRoute(t, scalarRoute("S2", "80", "10"))

	cb, err := s.engine.GetComplianceBalance(context.Background(), "S2", 2025)

	require.NoError(t, err)
	assertDecEqual(t, "8200000", cb.CBGco2eq)
}

func TestBalance_Memoized(t *testing.T) {
	// GIVEN: a stored balance for a ship that has no route at all
	s := newServices(t)
	s.setBalance(t, "GHOST", 2024, "123.45")

	// WHEN
	cb, err := s.engine.GetComplianceBalance(context.Background(), "GHOST", 2024)

	// THEN: the stored value is returned, nothing is recomputed
	require.NoError(t, err)
	assertDecEqual(t, "123.45", cb.CBGco2eq)
}

func TestBalance_PersistsOnFirstComputation(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	s.addRoute(t, hfoRoute("R001"))

	first, err := s.engine.GetComplianceBalance(ctx, "R001", 2024)
	require.NoError(t, err)

	stored, err := s.store.FindBalance(ctx, "R001", 2024)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.CBGco2eq.Equal(first.CBGco2eq))

	second, err := s.engine.GetComplianceBalance(ctx, "R001", 2024)
	require.NoError(t, err)
	assert.True(t, second.CBGco2eq.Equal(first.CBGco2eq))
}

func TestBalance_MissingRouteIsNotFound(t *testing.T) {
	s := newServices(t)

	_, err := s.engine.GetComplianceBalance(context.Background(), "NOPE", 2024)

	require.Error(t, err)
	assert.True(t, compliance.IsNotFound(err))
	var nf *compliance.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "route", nf.Kind)
	assert.Equal(t, "NOPE", nf.Key)
}

func TestBalance_SignConvention(t *testing.T) {
	s := newServices(t)
	s.addRoute(t, scalarRoute("LOW", "50", "1"))
	s.addRoute(t, scalarRoute("HIGH", "120", "1"))
	s.addRoute(t, scalarRoute("EXACT", "89.3368", "1"))
	ctx := context.Background()

	low, err := s.engine.GetComplianceBalance(ctx, "LOW", 2024)
	require.NoError(t, err)
	high, err := s.engine.GetComplianceBalance(ctx, "HIGH", 2024)
	require.NoError(t, err)
	exact, err := s.engine.GetComplianceBalance(ctx, "EXACT", 2024)
	require.NoError(t, err)

	assert.True(t, low.CBGco2eq.IsPositive())
	assert.True(t, high.CBGco2eq.IsNegative())
	assert.True(t, exact.CBGco2eq.IsZero())
}

// =============================================================================
// ADJUSTED BALANCE
// =============================================================================

func TestAdjusted_AddsPriorYearBank(t *testing.T) {
	// GIVEN: 5000 g banked in 2024, 2025 base balance 3828088
	ctx := context.Background()
	s := newServices(t)
	s.addRoute(t, scalarRoute("S2", "80", "10"))
	require.NoError(t, s.store.AppendBankEntry(ctx, compliance.BankEntry{
		ID: "e1", ShipID: "S2", Year: 2024, Kind: compliance.BankKindBanked, AmountGco2eq: d("5000"),
	}))

	// WHEN
	adj, err := s.engine.GetAdjustedComplianceBalance(ctx, "S2", 2025)

	// THEN
	require.NoError(t, err)
	assertDecEqual(t, "3828088", adj.Base)
	assertDecEqual(t, "5000", adj.BankedFromPriorYear)
	assertDecEqual(t, "3833088", adj.CBGco2eq)

	// AND: the stored base balance is untouched
	base, err := s.engine.GetComplianceBalance(ctx, "S2", 2025)
	require.NoError(t, err)
	assertDecEqual(t, "3828088", base.CBGco2eq)
}

func TestAdjusted_IgnoresSameYearBank(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	s.addRoute(t, scalarRoute("S2", "80", "10"))
	require.NoError(t, s.store.AppendBankEntry(ctx, compliance.BankEntry{
		ID: "e1", ShipID: "S2", Year: 2025, Kind: compliance.BankKindBanked, AmountGco2eq: d("5000"),
	}))

	adj, err := s.engine.GetAdjustedComplianceBalance(ctx, "S2", 2025)

	require.NoError(t, err)
	assert.True(t, adj.BankedFromPriorYear.IsZero())
	assert.True(t, adj.CBGco2eq.Equal(adj.Base))
}

func TestAdjusted_YearOneHasNoPriorYear(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	s.addRoute(t, scalarRoute("S2", "80", "10"))
	require.NoError(t, s.store.AppendBankEntry(ctx, compliance.BankEntry{
		ID: "e1", ShipID: "S2", Year: 0, Kind: compliance.BankKindBanked, AmountGco2eq: d("5000"),
	}))

	adj, err := s.engine.GetAdjustedComplianceBalance(ctx, "S2", 1)

	require.NoError(t, err)
	assert.True(t, adj.BankedFromPriorYear.IsZero())
}

func TestAdjusted_MissingRouteIsNotFound(t *testing.T) {
	s := newServices(t)
	_, err := s.engine.GetAdjustedComplianceBalance(context.Background(), "NOPE", 2025)
	assert.ErrorIs(t, err, compliance.ErrNotFound)
}
