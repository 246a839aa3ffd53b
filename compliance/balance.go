/*
balance.go - Compliance balance engine

PURPOSE:
  Answers "what is ship S's compliance balance for year Y?" and the adjusted
  variant that folds in what the ship banked in Y-1.

CALCULATION:
  cb = (targetIntensity - actualIntensity) × energyInScope

  actualIntensity and energyInScope come from the intensity calculator when
  the route has fuel compositions. Otherwise the route's stored scalar
  intensity is used together with fuelConsumption × fallbackEnergyPerTonne.

MEMOIZATION:
  The first request for (ship, year) computes and stores the balance. Every
  later request returns the stored value unchanged, even if the route was
  edited since. Two concurrent first requests may both compute; the store is
  last-write-wins and both writes carry the same value.

ADJUSTED BALANCE:
  adjusted = base + totalBanked(ship, year-1)

  The adjusted value is derived per request and never written back, so the
  historical base balance stays untouched.
*/
package compliance

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Settings holds the regulatory constants of the modeled scheme.
type Settings struct {
	// TargetIntensity in gCO2e/MJ.
	TargetIntensity decimal.Decimal
	// FallbackEnergyPerTonne in MJ/t, used for routes without fuel data.
	FallbackEnergyPerTonne decimal.Decimal
}

func DefaultSettings() Settings {
	return Settings{
		TargetIntensity:        MustParseDecimal("89.3368"),
		FallbackEnergyPerTonne: decimal.NewFromInt(41000),
	}
}

// BalanceSource is what banking and pooling need from the engine.
type BalanceSource interface {
	GetComplianceBalance(ctx context.Context, shipID ShipID, year int) (ComplianceBalance, error)
	GetAdjustedComplianceBalance(ctx context.Context, shipID ShipID, year int) (AdjustedBalance, error)
}

// BalanceEngine computes and memoizes compliance balances.
type BalanceEngine struct {
	Routes   RouteStore
	Balances BalanceStore
	Bank     BankStore
	Settings Settings
	Logger   zerolog.Logger
}

func NewBalanceEngine(routes RouteStore, balances BalanceStore, bank BankStore, settings Settings, logger zerolog.Logger) *BalanceEngine {
	return &BalanceEngine{
		Routes:   routes,
		Balances: balances,
		Bank:     bank,
		Settings: settings,
		Logger:   logger.With().Str("component", "balance_engine").Logger(),
	}
}

// Evaluate returns the intensity breakdown for a route, taking the stored
// scalar fallback when the route has no fuel compositions.
func (e *BalanceEngine) Evaluate(route Route) (IntensityBreakdown, error) {
	profile := route.EnergyProfile()
	if profile == nil {
		return IntensityBreakdown{
			Actual:        route.GHGIntensity,
			EnergyInScope: route.FuelConsumption.Mul(e.Settings.FallbackEnergyPerTonne),
			Fallback:      true,
		}, nil
	}
	return Calculate(*profile)
}

// BalanceFor applies the target to an intensity and energy pair.
func (e *BalanceEngine) BalanceFor(actual, energyInScope decimal.Decimal) decimal.Decimal {
	return e.Settings.TargetIntensity.Sub(actual).Mul(energyInScope)
}

// GetComplianceBalance returns the stored balance or computes and stores it.
func (e *BalanceEngine) GetComplianceBalance(ctx context.Context, shipID ShipID, year int) (ComplianceBalance, error) {
	existing, err := e.Balances.FindBalance(ctx, shipID, year)
	if err != nil {
		return ComplianceBalance{}, fmt.Errorf("load balance %s/%d: %w", shipID, year, err)
	}
	if existing != nil {
		return *existing, nil
	}

	route, err := e.Routes.FindRoute(ctx, string(shipID))
	if err != nil {
		return ComplianceBalance{}, fmt.Errorf("load route %s: %w", shipID, err)
	}
	if route == nil {
		return ComplianceBalance{}, &NotFoundError{Kind: "route", Key: string(shipID)}
	}

	breakdown, err := e.Evaluate(*route)
	if err != nil {
		return ComplianceBalance{}, err
	}

	cb := ComplianceBalance{
		ShipID:   shipID,
		Year:     year,
		CBGco2eq: e.BalanceFor(breakdown.Actual, breakdown.EnergyInScope),
	}
	if err := e.Balances.SaveBalance(ctx, cb); err != nil {
		return ComplianceBalance{}, fmt.Errorf("save balance %s/%d: %w", shipID, year, err)
	}

	e.Logger.Debug().
		Str("ship_id", string(shipID)).
		Int("year", year).
		Bool("fallback", breakdown.Fallback).
		Str("actual_intensity", breakdown.Actual.StringFixed(4)).
		Str("cb_gco2eq", cb.CBGco2eq.StringFixed(2)).
		Msg("compliance balance computed")

	return cb, nil
}

// GetAdjustedComplianceBalance adds the prior year's remaining bank total to
// the base balance.
func (e *BalanceEngine) GetAdjustedComplianceBalance(ctx context.Context, shipID ShipID, year int) (AdjustedBalance, error) {
	base, err := e.GetComplianceBalance(ctx, shipID, year)
	if err != nil {
		return AdjustedBalance{}, err
	}

	banked := decimal.Zero
	if prior := year - 1; prior > 0 {
		banked, err = totalBanked(ctx, e.Bank, shipID, prior)
		if err != nil {
			return AdjustedBalance{}, err
		}
	}

	return AdjustedBalance{
		ShipID:              shipID,
		Year:                year,
		Base:                base.CBGco2eq,
		BankedFromPriorYear: banked,
		CBGco2eq:            base.CBGco2eq.Add(banked),
	}, nil
}
