/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the compliance domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

NUMBERS:
  Responses carry float64 for display. Request amounts decode into
  decimal.Decimal so a submitted value reaches the ledger unrounded; both
  JSON numbers and quoted strings are accepted. Fuel compositions are
  echoed as decimals (quoted strings) so they round-trip exactly.

VALIDATION:
  Validation is done in handlers and in the compliance package, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/compliance"
)

// =============================================================================
// ROUTES
// =============================================================================

// FuelCompositionDTO is one fuel record on a route.
type FuelCompositionDTO struct {
	FuelName         string           `json:"fuelName"`
	MassTonnes       decimal.Decimal  `json:"massTonnes"`
	WtTFactor        decimal.Decimal  `json:"wtTFactor"`
	TtWFactor        decimal.Decimal  `json:"ttWFactor"`
	LCVMJPerKg       decimal.Decimal  `json:"lcvMJPerKg"`
	MethaneSlipCoeff *decimal.Decimal `json:"methaneSlipCoeff,omitempty"`
}

// RouteDTO represents a route in API responses.
type RouteDTO struct {
	ID               string               `json:"id"`
	RouteID          string               `json:"routeId"`
	VesselType       string               `json:"vesselType"`
	FuelType         string               `json:"fuelType"`
	Year             int                  `json:"year"`
	GHGIntensity     float64              `json:"ghgIntensity"`
	FuelConsumption  float64              `json:"fuelConsumption"`
	Distance         float64              `json:"distance"`
	TotalEmissions   float64              `json:"totalEmissions"`
	IsBaseline       bool                 `json:"isBaseline"`
	WindFactor       float64              `json:"windFactor"`
	ElectricityMJ    float64              `json:"electricityMJ"`
	FuelCompositions []FuelCompositionDTO `json:"fuelCompositions"`
}

// CreateRouteRequest is the body of POST /api/routes.
type CreateRouteRequest struct {
	RouteID          string               `json:"routeId"`
	VesselType       string               `json:"vesselType"`
	FuelType         string               `json:"fuelType"`
	Year             int                  `json:"year"`
	GHGIntensity     decimal.Decimal      `json:"ghgIntensity"`
	FuelConsumption  decimal.Decimal      `json:"fuelConsumption"`
	Distance         decimal.Decimal      `json:"distance"`
	TotalEmissions   decimal.Decimal      `json:"totalEmissions"`
	WindFactor       decimal.Decimal      `json:"windFactor"`
	ElectricityMJ    decimal.Decimal      `json:"electricityMJ"`
	FuelCompositions []FuelCompositionDTO `json:"fuelCompositions"`
}

// RouteComparisonDTO is one non-baseline route measured against the baseline.
type RouteComparisonDTO struct {
	Route              RouteDTO `json:"route"`
	ActualGhgIntensity float64  `json:"actualGhgIntensity"`
	PercentDiff        float64  `json:"percentDiff"`
	Compliant          bool     `json:"compliant"`
}

// ComparisonDTO is the response of GET /api/routes/comparison.
type ComparisonDTO struct {
	Baseline                RouteDTO             `json:"baseline"`
	BaselineActualIntensity float64              `json:"baselineActualIntensity"`
	TargetIntensity         float64              `json:"targetIntensity"`
	Comparisons             []RouteComparisonDTO `json:"comparisons"`
}

// IntensityDTO is the calculation breakdown for one route.
type IntensityDTO struct {
	RouteID       string  `json:"routeId"`
	WtT           float64 `json:"wtt"`
	TtW           float64 `json:"ttw"`
	WindFactor    float64 `json:"windFactor"`
	Actual        float64 `json:"actualGhgIntensity"`
	EnergyInScope float64 `json:"energyInScopeMJ"`
	Target        float64 `json:"targetIntensity"`
	Fallback      bool    `json:"fallback"`
}

// =============================================================================
// COMPLIANCE
// =============================================================================

// ComplianceBalanceDTO is the response of GET /api/compliance/cb.
type ComplianceBalanceDTO struct {
	ShipID   string  `json:"shipId"`
	Year     int     `json:"year"`
	CBGco2eq float64 `json:"cbGco2eq"`
}

// AdjustedBalanceDTO is the response of GET /api/compliance/adjusted-cb.
type AdjustedBalanceDTO struct {
	ShipID              string  `json:"shipId"`
	Year                int     `json:"year"`
	BaseGco2eq          float64 `json:"baseCbGco2eq"`
	BankedFromPriorYear float64 `json:"bankedFromPriorYear"`
	CBGco2eq            float64 `json:"cbGco2eq"`
}

// =============================================================================
// BANKING
// =============================================================================

// BankRequest is the body of POST /api/banking/bank.
type BankRequest struct {
	ShipID string `json:"shipId"`
	Year   int    `json:"year"`
}

// ApplyRequest is the body of POST /api/banking/apply.
type ApplyRequest struct {
	ShipID string          `json:"shipId"`
	Year   int             `json:"year"`
	Amount decimal.Decimal `json:"amount"`
}

// BankEntryDTO represents a ledger row.
type BankEntryDTO struct {
	ID           string  `json:"id"`
	ShipID       string  `json:"shipId"`
	Year         int     `json:"year"`
	Kind         string  `json:"kind"`
	AmountGco2eq float64 `json:"amountGco2eq"`
	CreatedAt    string  `json:"createdAt"`
}

// BankRecordsDTO is the response of GET /api/banking/records.
type BankRecordsDTO struct {
	ShipID      string         `json:"shipId"`
	Year        int            `json:"year"`
	TotalBanked float64        `json:"totalBanked"`
	Records     []BankEntryDTO `json:"records"`
}

// ApplyResultDTO is the response of POST /api/banking/apply.
type ApplyResultDTO struct {
	ShipID  string  `json:"shipId"`
	Year    int     `json:"year"`
	Applied float64 `json:"applied"`
	CBAfter float64 `json:"cbAfter"`
}

// =============================================================================
// POOLING
// =============================================================================

// CreatePoolRequest is the body of POST /api/pools.
type CreatePoolRequest struct {
	Year    int      `json:"year"`
	ShipIDs []string `json:"shipIds"`
}

// PoolMemberDTO is one member allocation.
type PoolMemberDTO struct {
	ShipID   string  `json:"shipId"`
	CBBefore float64 `json:"cbBefore"`
	CBAfter  float64 `json:"cbAfter"`
}

// PoolDTO represents a pool in API responses.
type PoolDTO struct {
	ID          string          `json:"id"`
	Year        int             `json:"year"`
	CreatedAt   string          `json:"createdAt"`
	TotalBefore float64         `json:"totalBefore"`
	TotalAfter  float64         `json:"totalAfter"`
	Members     []PoolMemberDTO `json:"members"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toRouteDTO(r compliance.Route) RouteDTO {
	fuels := make([]FuelCompositionDTO, len(r.FuelCompositions))
	for i, f := range r.FuelCompositions {
		fuels[i] = FuelCompositionDTO{
			FuelName:   f.FuelName,
			MassTonnes: f.MassTonnes,
			WtTFactor:  f.WtTFactor,
			TtWFactor:  f.TtWFactor,
			LCVMJPerKg: f.LCVMJPerKg,
		}
		if f.MethaneSlipCoeff.Valid {
			slip := f.MethaneSlipCoeff.Decimal
			fuels[i].MethaneSlipCoeff = &slip
		}
	}
	return RouteDTO{
		ID:               r.ID,
		RouteID:          r.RouteID,
		VesselType:       r.VesselType,
		FuelType:         r.FuelType,
		Year:             r.Year,
		GHGIntensity:     toFloat(r.GHGIntensity),
		FuelConsumption:  toFloat(r.FuelConsumption),
		Distance:         toFloat(r.Distance),
		TotalEmissions:   toFloat(r.TotalEmissions),
		IsBaseline:       r.IsBaseline,
		WindFactor:       toFloat(r.WindFactor),
		ElectricityMJ:    toFloat(r.ElectricityMJ),
		FuelCompositions: fuels,
	}
}

func toRouteDTOs(routes []compliance.Route) []RouteDTO {
	dtos := make([]RouteDTO, len(routes))
	for i, r := range routes {
		dtos[i] = toRouteDTO(r)
	}
	return dtos
}

func (req CreateRouteRequest) toRoute() compliance.Route {
	fuels := make([]compliance.FuelComposition, len(req.FuelCompositions))
	for i, f := range req.FuelCompositions {
		fuels[i] = compliance.FuelComposition{
			FuelName:   f.FuelName,
			MassTonnes: f.MassTonnes,
			WtTFactor:  f.WtTFactor,
			TtWFactor:  f.TtWFactor,
			LCVMJPerKg: f.LCVMJPerKg,
		}
		if f.MethaneSlipCoeff != nil {
			fuels[i].MethaneSlipCoeff = decimal.NewNullDecimal(*f.MethaneSlipCoeff)
		}
	}
	return compliance.Route{
		RouteID:          req.RouteID,
		VesselType:       req.VesselType,
		FuelType:         req.FuelType,
		Year:             req.Year,
		GHGIntensity:     req.GHGIntensity,
		FuelConsumption:  req.FuelConsumption,
		Distance:         req.Distance,
		TotalEmissions:   req.TotalEmissions,
		WindFactor:       req.WindFactor,
		ElectricityMJ:    req.ElectricityMJ,
		FuelCompositions: fuels,
	}
}

func toBankEntryDTO(e compliance.BankEntry) BankEntryDTO {
	return BankEntryDTO{
		ID:           string(e.ID),
		ShipID:       string(e.ShipID),
		Year:         e.Year,
		Kind:         string(e.Kind),
		AmountGco2eq: toFloat(e.AmountGco2eq),
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func toPoolDTO(p compliance.Pool) PoolDTO {
	members := make([]PoolMemberDTO, len(p.Members))
	for i, m := range p.Members {
		members[i] = PoolMemberDTO{
			ShipID:   string(m.ShipID),
			CBBefore: toFloat(m.CBBefore),
			CBAfter:  toFloat(m.CBAfter),
		}
	}
	return PoolDTO{
		ID:          string(p.ID),
		Year:        p.Year,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		TotalBefore: toFloat(p.TotalBefore()),
		TotalAfter:  toFloat(p.TotalAfter()),
		Members:     members,
	}
}
