/*
intensity.go - GHG intensity calculator

PURPOSE:
  Pure functions turning a route's fuel mix into Well-to-Tank, Tank-to-Wake
  and wind-adjusted actual GHG intensity, plus the energy in scope.

FORMULAS:
  massKg_i      = massTonnes_i × 1000
  energyInScope = electricityMJ + Σ(massKg_i × lcv_i)
  WtT           = Σ(massKg_i × wtt_i × lcv_i) / energyInScope
  TtW           = Σ(massKg_i × ttwEff_i × lcv_i) / energyInScope
  ttwEff_i      = ttw_i × (1 + slip_i)   when a methane slip is given
  actual        = windFactor × (WtT + TtW)

  Shore power adds energy with zero emissions. With no energy at all WtT and
  TtW are 0; that is a defined result, not an error.

EXAMPLE:
  10 t of fuel, LCV 40, WtT 15, TtW 70:
  energy = 400000 MJ, WtT = 15, TtW = 70, actual = wind × 85
*/
package compliance

import "github.com/shopspring/decimal"

var kgPerTonne = decimal.NewFromInt(1000)

// IntensityBreakdown is the full calculation result for one route.
type IntensityBreakdown struct {
	WtT           decimal.Decimal
	TtW           decimal.Decimal
	Actual        decimal.Decimal
	EnergyInScope decimal.Decimal

	// Fallback is set when the stored scalar intensity was used instead of
	// fuel compositions.
	Fallback bool
}

// Validate checks the mass and calorific value invariants.
func (f FuelComposition) Validate() error {
	if f.MassTonnes.IsNegative() {
		return &FuelCompositionError{FuelName: f.FuelName, Reason: "mass must not be negative"}
	}
	if f.MassTonnes.IsPositive() && !f.LCVMJPerKg.IsPositive() {
		return &FuelCompositionError{FuelName: f.FuelName, Reason: "lower calorific value must be positive"}
	}
	return nil
}

// EffectiveTtWFactor applies the methane slip coefficient when present.
func (f FuelComposition) EffectiveTtWFactor() decimal.Decimal {
	if f.MethaneSlipCoeff.Valid {
		return f.TtWFactor.Mul(decimal.NewFromInt(1).Add(f.MethaneSlipCoeff.Decimal))
	}
	return f.TtWFactor
}

// Energy is the fuel's energy contribution in MJ.
func (f FuelComposition) Energy() decimal.Decimal {
	return f.MassKg().Mul(f.LCVMJPerKg)
}

// EnergyInScope sums fuel energy and shore electricity.
func EnergyInScope(fuels []FuelComposition, electricityMJ decimal.Decimal) decimal.Decimal {
	total := electricityMJ
	for _, f := range fuels {
		total = total.Add(f.Energy())
	}
	return total
}

// WtT returns the Well-to-Tank intensity in gCO2e/MJ.
func WtT(fuels []FuelComposition, electricityMJ decimal.Decimal) decimal.Decimal {
	return weightedIntensity(fuels, electricityMJ, func(f FuelComposition) decimal.Decimal {
		return f.WtTFactor
	})
}

// TtW returns the Tank-to-Wake intensity in gCO2e/MJ, methane slip included.
func TtW(fuels []FuelComposition, electricityMJ decimal.Decimal) decimal.Decimal {
	return weightedIntensity(fuels, electricityMJ, FuelComposition.EffectiveTtWFactor)
}

func weightedIntensity(fuels []FuelComposition, electricityMJ decimal.Decimal, factor func(FuelComposition) decimal.Decimal) decimal.Decimal {
	energy := EnergyInScope(fuels, electricityMJ)
	if energy.IsZero() {
		return decimal.Zero
	}
	numerator := decimal.Zero
	for _, f := range fuels {
		numerator = numerator.Add(f.MassKg().Mul(factor(f)).Mul(f.LCVMJPerKg))
	}
	return numerator.Div(energy)
}

// ActualGhgIntensity returns windFactor × (WtT + TtW). The wind factor is
// not clamped.
func ActualGhgIntensity(p RouteEnergyProfile) decimal.Decimal {
	wtt := WtT(p.FuelCompositions, p.ElectricityMJ)
	ttw := TtW(p.FuelCompositions, p.ElectricityMJ)
	return p.WindFactor.Mul(wtt.Add(ttw))
}

// Calculate validates the profile and returns the full breakdown.
func Calculate(p RouteEnergyProfile) (IntensityBreakdown, error) {
	for _, f := range p.FuelCompositions {
		if err := f.Validate(); err != nil {
			return IntensityBreakdown{}, err
		}
	}
	if p.ElectricityMJ.IsNegative() {
		return IntensityBreakdown{}, invalidf("electricity must not be negative (got %s MJ)", p.ElectricityMJ)
	}

	wtt := WtT(p.FuelCompositions, p.ElectricityMJ)
	ttw := TtW(p.FuelCompositions, p.ElectricityMJ)
	return IntensityBreakdown{
		WtT:           wtt,
		TtW:           ttw,
		Actual:        p.WindFactor.Mul(wtt.Add(ttw)),
		EnergyInScope: EnergyInScope(p.FuelCompositions, p.ElectricityMJ),
	}, nil
}
