/*
scenarios.go - Reference data loaders for demos and testing

PURPOSE:

	Provides pre-built scenarios that populate the store with a realistic
	fleet. Each scenario starts from the five reference routes and then
	drives the banking or pooling operations that demonstrate a feature.

AVAILABLE SCENARIOS:

	reference-fleet: R001-R005, R001 is the 2024 baseline
	banking:         Reference fleet, R002 banks its 2024 surplus and applies part
	pooling:         Reference fleet, R001-R003 pooled for 2024

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Create the reference routes
 3. Mark the baseline
 4. Optionally bank, apply or pool

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "banking"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - cmd/server/main.go: seed command uses SeedReferenceRoutes
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/compliance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "reference-fleet",
		Name:        "Reference Fleet",
		Description: "Five routes across 2024 and 2025 with R001 as baseline",
	},
	{
		ID:          "banking",
		Name:        "Banking",
		Description: "R002 banks its 2024 surplus and applies part of it",
	},
	{
		ID:          "pooling",
		Name:        "Pooling",
		Description: "R001, R002 and R003 pool their 2024 balances",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context, *Handler) error
	switch req.ScenarioID {
	case "reference-fleet":
		load = loadReferenceFleetScenario
	case "banking":
		load = loadBankingScenario
	case "pooling":
		load = loadPoolingScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	resetter, ok := h.Store.(Resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	if err := load(ctx, h); err != nil {
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Logger.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// REFERENCE ROUTES
// =============================================================================

func fuelRecord(name string, massTonnes, wtt, lcv, ttw float64) compliance.FuelComposition {
	return compliance.FuelComposition{
		FuelName:   name,
		MassTonnes: compliance.Dec(massTonnes),
		WtTFactor:  compliance.Dec(wtt),
		TtWFactor:  compliance.Dec(ttw),
		LCVMJPerKg: compliance.Dec(lcv),
	}
}

func lngRecord(massTonnes, slip float64) compliance.FuelComposition {
	f := fuelRecord("LNG", massTonnes, 20, 48, 55)
	f.MethaneSlipCoeff = decimal.NewNullDecimal(compliance.Dec(slip))
	return f
}

// ReferenceRoutes returns the five-route reference fleet.
func ReferenceRoutes() []compliance.Route {
	return []compliance.Route{
		{
			RouteID: "R001", VesselType: "Container", FuelType: "HFO", Year: 2024,
			GHGIntensity: compliance.Dec(91.05), FuelConsumption: compliance.Dec(12000),
			Distance: compliance.Dec(4500), TotalEmissions: compliance.Dec(4500),
			FuelCompositions: []compliance.FuelComposition{fuelRecord("HFO", 12000, 15, 40, 75)},
		},
		{
			RouteID: "R002", VesselType: "BulkCarrier", FuelType: "LNG", Year: 2024,
			GHGIntensity: compliance.Dec(88.04), FuelConsumption: compliance.Dec(8000),
			Distance: compliance.Dec(11500), TotalEmissions: compliance.Dec(4200),
			FuelCompositions: []compliance.FuelComposition{lngRecord(8000, 0.03)},
		},
		{
			RouteID: "R003", VesselType: "Tanker", FuelType: "MGO", Year: 2024,
			GHGIntensity: compliance.Dec(93.55), FuelConsumption: compliance.Dec(5100),
			Distance: compliance.Dec(12500), TotalEmissions: compliance.Dec(4700),
			FuelCompositions: []compliance.FuelComposition{fuelRecord("MGO", 5100, 12, 42.5, 78)},
		},
		{
			RouteID: "R004", VesselType: "RoRo", FuelType: "HFO", Year: 2025,
			GHGIntensity: compliance.Dec(89.24), FuelConsumption: compliance.Dec(9000),
			Distance: compliance.Dec(11800), TotalEmissions: compliance.Dec(4300),
			WindFactor: compliance.Dec(0.95), ElectricityMJ: compliance.Dec(500000),
			FuelCompositions: []compliance.FuelComposition{fuelRecord("HFO", 9000, 15, 40, 75)},
		},
		{
			RouteID: "R005", VesselType: "Container", FuelType: "LNG", Year: 2025,
			GHGIntensity: compliance.Dec(90.54), FuelConsumption: compliance.Dec(9500),
			Distance: compliance.Dec(11900), TotalEmissions: compliance.Dec(4400),
			FuelCompositions: []compliance.FuelComposition{lngRecord(9500, 0.04)},
		},
	}
}

// SeedReferenceRoutes creates the reference fleet and marks R001 as the
// baseline. Routes that already exist are left alone.
func SeedReferenceRoutes(ctx context.Context, catalog *compliance.RouteCatalog) error {
	existing, err := catalog.ListRoutes(ctx, compliance.RouteFilter{})
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, r := range existing {
		have[r.RouteID] = true
	}

	for _, route := range ReferenceRoutes() {
		if have[route.RouteID] {
			continue
		}
		if _, err := catalog.CreateRoute(ctx, route); err != nil {
			return fmt.Errorf("seed %s: %w", route.RouteID, err)
		}
	}
	if !have["R001"] {
		if _, err := catalog.SetBaseline(ctx, "R001"); err != nil {
			return fmt.Errorf("seed baseline: %w", err)
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadReferenceFleetScenario(ctx context.Context, h *Handler) error {
	return SeedReferenceRoutes(ctx, h.Catalog)
}

func loadBankingScenario(ctx context.Context, h *Handler) error {
	if err := SeedReferenceRoutes(ctx, h.Catalog); err != nil {
		return err
	}
	entry, err := h.Ledger.BankSurplus(ctx, "R002", 2024)
	if err != nil {
		return err
	}
	// Draw a quarter so the records show both kinds.
	_, err = h.Ledger.ApplyBanked(ctx, "R002", 2024, entry.AmountGco2eq.Div(decimal.NewFromInt(4)).Round(2))
	return err
}

func loadPoolingScenario(ctx context.Context, h *Handler) error {
	if err := SeedReferenceRoutes(ctx, h.Catalog); err != nil {
		return err
	}
	_, err := h.Pools.CreatePool(ctx, 2024, []compliance.ShipID{"R001", "R002", "R003"})
	return err
}
