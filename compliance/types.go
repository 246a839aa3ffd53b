/*
Package compliance provides the FuelEU-style compliance and pooling engine.

PURPOSE:
  Computes greenhouse-gas compliance balances for vessel routes and supports
  the two flexibility mechanisms of the scheme: banking a surplus into the
  following year, and pooling balances across ships within one year.

KEY CONCEPTS IN THIS FILE (types.go):
  - FuelComposition: One fuel burned on a route, with its emission factors
  - RouteEnergyProfile: A route's fuel mix plus shore power and wind reward
  - Route: The stored voyage record a ship's balance is derived from
  - ComplianceBalance: Signed gCO2e balance for (ship, year)
  - BankEntry: Banked (or applied) surplus for (ship, year)
  - Pool / PoolMember: Result of a pooling operation

DESIGN PRINCIPLES:
  1. Precision: All quantities are decimal.Decimal so pool transfers conserve
     the total exactly
  2. Immutability: Stored balances, bank entries and pools are never edited
  3. Explicit fallback: A route without fuel compositions has a nil energy
     profile, and callers branch on that instead of probing fields

SEE ALSO:
  - intensity.go: WtT / TtW / actual intensity
  - balance.go: Compliance balance engine
  - banking.go: Banking ledger
  - pooling.go: Pool allocator
*/
package compliance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ShipID identifies a ship. Ships are keyed by the route id they sail.
type ShipID string

type PoolID string
type EntryID string

// Dec builds a decimal from a float literal. Intended for seeds and tests.
func Dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// MustParseDecimal parses s and panics if it is not a decimal.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// FUEL AND ENERGY
// =============================================================================

// FuelComposition is one fuel type consumed on a route.
// Emission factors are gCO2e per MJ of fuel energy.
type FuelComposition struct {
	FuelName   string
	MassTonnes decimal.Decimal
	WtTFactor  decimal.Decimal
	TtWFactor  decimal.Decimal
	LCVMJPerKg decimal.Decimal

	// MethaneSlipCoeff scales TtWFactor by (1 + coeff) when valid.
	MethaneSlipCoeff decimal.NullDecimal
}

// MassKg converts the consumed mass from tonnes to kilograms.
func (f FuelComposition) MassKg() decimal.Decimal {
	return f.MassTonnes.Mul(kgPerTonne)
}

// RouteEnergyProfile aggregates a route's fuel and auxiliary energy inputs.
type RouteEnergyProfile struct {
	FuelCompositions []FuelComposition
	ElectricityMJ    decimal.Decimal
	WindFactor       decimal.Decimal
}

// =============================================================================
// ROUTE
// =============================================================================

// Route is a stored voyage record. RouteID doubles as the ship identifier.
type Route struct {
	ID         string
	RouteID    string
	VesselType string
	FuelType   string
	Year       int

	GHGIntensity    decimal.Decimal // stored scalar, gCO2e/MJ
	FuelConsumption decimal.Decimal // tonnes
	Distance        decimal.Decimal // km
	TotalEmissions  decimal.Decimal // tonnes
	IsBaseline      bool

	WindFactor       decimal.Decimal
	ElectricityMJ    decimal.Decimal
	FuelCompositions []FuelComposition
}

func (r Route) ShipID() ShipID { return ShipID(r.RouteID) }

// EnergyProfile returns nil when the route carries no fuel compositions.
// In that case the stored GHGIntensity and the fuel-consumption energy
// approximation apply instead of the calculator. A zero wind factor reads
// as 1.
func (r Route) EnergyProfile() *RouteEnergyProfile {
	if len(r.FuelCompositions) == 0 {
		return nil
	}
	fuels := make([]FuelComposition, len(r.FuelCompositions))
	copy(fuels, r.FuelCompositions)
	wind := r.WindFactor
	if wind.IsZero() {
		wind = decimal.NewFromInt(1)
	}
	return &RouteEnergyProfile{
		FuelCompositions: fuels,
		ElectricityMJ:    r.ElectricityMJ,
		WindFactor:       wind,
	}
}

// RouteFilter narrows ListRoutes. Zero values match everything.
type RouteFilter struct {
	VesselType string
	FuelType   string
	Year       int
}

func (f RouteFilter) Matches(r Route) bool {
	if f.VesselType != "" && f.VesselType != r.VesselType {
		return false
	}
	if f.FuelType != "" && f.FuelType != r.FuelType {
		return false
	}
	if f.Year != 0 && f.Year != r.Year {
		return false
	}
	return true
}

// =============================================================================
// COMPLIANCE BALANCE
// =============================================================================

// ComplianceBalance is the regulatory headline value for (ship, year).
// Positive is surplus, negative is deficit. Stored once, never mutated.
type ComplianceBalance struct {
	ShipID   ShipID
	Year     int
	CBGco2eq decimal.Decimal
}

func (cb ComplianceBalance) IsSurplus() bool { return cb.CBGco2eq.IsPositive() }
func (cb ComplianceBalance) IsDeficit() bool { return cb.CBGco2eq.IsNegative() }

// AdjustedBalance is the base balance plus what remains banked from the
// prior year. It is derived on every request and never persisted.
type AdjustedBalance struct {
	ShipID              ShipID
	Year                int
	Base                decimal.Decimal
	BankedFromPriorYear decimal.Decimal
	CBGco2eq            decimal.Decimal
}

// =============================================================================
// BANK ENTRY
// =============================================================================

type BankEntryKind string

const (
	BankKindBanked  BankEntryKind = "banked"  // surplus moved into the bank
	BankKindApplied BankEntryKind = "applied" // banked surplus drawn down
)

// BankEntry is an immutable ledger row. AmountGco2eq is always positive;
// Kind decides whether it adds to or draws from the bank total.
type BankEntry struct {
	ID             EntryID
	ShipID         ShipID
	Year           int
	Kind           BankEntryKind
	AmountGco2eq   decimal.Decimal
	IdempotencyKey string
	CreatedAt      time.Time
}

// Signed returns the entry's contribution to the bank total.
func (e BankEntry) Signed() decimal.Decimal {
	if e.Kind == BankKindApplied {
		return e.AmountGco2eq.Neg()
	}
	return e.AmountGco2eq
}

// =============================================================================
// POOL
// =============================================================================

type Pool struct {
	ID        PoolID
	Year      int
	Members   []PoolMember
	CreatedAt time.Time
}

type PoolMember struct {
	ID       EntryID
	PoolID   PoolID
	ShipID   ShipID
	CBBefore decimal.Decimal
	CBAfter  decimal.Decimal
}

// TotalBefore sums the members' pre-pooling balances.
func (p Pool) TotalBefore() decimal.Decimal {
	total := decimal.Zero
	for _, m := range p.Members {
		total = total.Add(m.CBBefore)
	}
	return total
}

// TotalAfter sums the members' post-allocation balances.
func (p Pool) TotalAfter() decimal.Decimal {
	total := decimal.Zero
	for _, m := range p.Members {
		total = total.Add(m.CBAfter)
	}
	return total
}
