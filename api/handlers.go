/*
handlers.go - HTTP API handlers for the compliance engine

PURPOSE:
  Exposes routes, compliance balances, banking and pooling via REST API.
  Handles HTTP request/response and JSON serialization, and delegates to
  the compliance services.

ENDPOINTS:
  Routes:
    GET    /api/routes                      List routes (vesselType, fuelType, year)
    POST   /api/routes                      Create route
    POST   /api/routes/{id}/baseline        Make route the baseline of its year
    GET    /api/routes/comparison           Compare routes against the baseline
    GET    /api/routes/{id}/intensity       Intensity calculation breakdown

  Compliance:
    GET    /api/compliance/cb               ?shipId&year
    GET    /api/compliance/adjusted-cb      ?shipId&year

  Banking:
    GET    /api/banking/records             ?shipId&year
    POST   /api/banking/bank                Bank the whole surplus
    POST   /api/banking/apply               Draw down banked surplus

  Pools:
    POST   /api/pools                       Create pool
    GET    /api/pools/{id}                  Pool with allocations

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, failed preconditions
  - 404: Ship, route, pool or baseline not found
  - 409: Surplus already banked
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Reference data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/compliance-engine/compliance"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears every table. Used by scenario loading.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   compliance.Store
	Engine  *compliance.BalanceEngine
	Ledger  *compliance.BankingLedger
	Pools   *compliance.PoolAllocator
	Catalog *compliance.RouteCatalog
	Logger  zerolog.Logger

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler wires the compliance services onto store.
func NewHandler(store compliance.Store, settings compliance.Settings, logger zerolog.Logger) *Handler {
	engine := compliance.NewBalanceEngine(store, store, store, settings, logger)
	return &Handler{
		Store:   store,
		Engine:  engine,
		Ledger:  compliance.NewBankingLedger(store, engine, logger),
		Pools:   compliance.NewPoolAllocator(store, engine, logger),
		Catalog: compliance.NewRouteCatalog(store, engine),
		Logger:  logger.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// ROUTE HANDLERS
// =============================================================================

// ListRoutes returns routes, optionally filtered.
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := compliance.RouteFilter{
		VesselType: q.Get("vesselType"),
		FuelType:   q.Get("fuelType"),
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		filter.Year = year
	}

	routes, err := h.Catalog.ListRoutes(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list routes", err)
		return
	}
	writeJSON(w, http.StatusOK, toRouteDTOs(routes))
}

// CreateRoute stores a new route.
func (h *Handler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req CreateRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	route, err := h.Catalog.CreateRoute(r.Context(), req.toRoute())
	if err != nil {
		h.writeDomainError(w, "Failed to create route", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRouteDTO(route))
}

// SetBaseline makes the route the baseline of its year.
func (h *Handler) SetBaseline(w http.ResponseWriter, r *http.Request) {
	route, err := h.Catalog.SetBaseline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to set baseline", err)
		return
	}
	writeJSON(w, http.StatusOK, toRouteDTO(route))
}

// GetComparison compares every route against the baseline.
func (h *Handler) GetComparison(w http.ResponseWriter, r *http.Request) {
	cmp, err := h.Catalog.Compare(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to compare routes", err)
		return
	}

	dto := ComparisonDTO{
		Baseline:                toRouteDTO(cmp.Baseline),
		BaselineActualIntensity: toFloat(cmp.BaselineActualIntensity),
		TargetIntensity:         toFloat(cmp.TargetIntensity),
		Comparisons:             make([]RouteComparisonDTO, len(cmp.Comparisons)),
	}
	for i, c := range cmp.Comparisons {
		dto.Comparisons[i] = RouteComparisonDTO{
			Route:              toRouteDTO(c.Route),
			ActualGhgIntensity: toFloat(c.ActualGhgIntensity),
			PercentDiff:        toFloat(c.PercentDiff),
			Compliant:          c.Compliant,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetIntensity returns the calculation breakdown of one route.
func (h *Handler) GetIntensity(w http.ResponseWriter, r *http.Request) {
	route, b, err := h.Catalog.Breakdown(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to calculate intensity", err)
		return
	}
	writeJSON(w, http.StatusOK, IntensityDTO{
		RouteID:       route.RouteID,
		WtT:           toFloat(b.WtT),
		TtW:           toFloat(b.TtW),
		WindFactor:    toFloat(route.WindFactor),
		Actual:        toFloat(b.Actual),
		EnergyInScope: toFloat(b.EnergyInScope),
		Target:        toFloat(h.Engine.Settings.TargetIntensity),
		Fallback:      b.Fallback,
	})
}

// =============================================================================
// COMPLIANCE HANDLERS
// =============================================================================

// GetComplianceBalance returns the (memoized) balance for shipId/year.
func (h *Handler) GetComplianceBalance(w http.ResponseWriter, r *http.Request) {
	shipID, year, ok := shipYearQuery(w, r)
	if !ok {
		return
	}

	cb, err := h.Engine.GetComplianceBalance(r.Context(), shipID, year)
	if err != nil {
		h.writeDomainError(w, "Failed to get compliance balance", err)
		return
	}
	writeJSON(w, http.StatusOK, ComplianceBalanceDTO{
		ShipID:   string(cb.ShipID),
		Year:     cb.Year,
		CBGco2eq: toFloat(cb.CBGco2eq),
	})
}

// GetAdjustedBalance returns the balance plus what was banked in year-1.
func (h *Handler) GetAdjustedBalance(w http.ResponseWriter, r *http.Request) {
	shipID, year, ok := shipYearQuery(w, r)
	if !ok {
		return
	}

	adj, err := h.Engine.GetAdjustedComplianceBalance(r.Context(), shipID, year)
	if err != nil {
		h.writeDomainError(w, "Failed to get adjusted compliance balance", err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustedBalanceDTO{
		ShipID:              string(adj.ShipID),
		Year:                adj.Year,
		BaseGco2eq:          toFloat(adj.Base),
		BankedFromPriorYear: toFloat(adj.BankedFromPriorYear),
		CBGco2eq:            toFloat(adj.CBGco2eq),
	})
}

// =============================================================================
// BANKING HANDLERS
// =============================================================================

// GetBankRecords lists the ledger rows of shipId/year.
func (h *Handler) GetBankRecords(w http.ResponseWriter, r *http.Request) {
	shipID, year, ok := shipYearQuery(w, r)
	if !ok {
		return
	}

	entries, err := h.Ledger.Records(r.Context(), shipID, year)
	if err != nil {
		h.writeDomainError(w, "Failed to get bank records", err)
		return
	}

	dtos := make([]BankEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toBankEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, BankRecordsDTO{
		ShipID:      string(shipID),
		Year:        year,
		TotalBanked: toFloat(compliance.SumBankEntries(entries)),
		Records:     dtos,
	})
}

// BankSurplus banks the whole positive balance of shipId/year.
func (h *Handler) BankSurplus(w http.ResponseWriter, r *http.Request) {
	var req BankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ShipID == "" || req.Year == 0 {
		writeError(w, http.StatusBadRequest, "shipId and year are required", nil)
		return
	}

	start := time.Now()
	entry, err := h.Ledger.BankSurplus(r.Context(), compliance.ShipID(req.ShipID), req.Year)
	ObserveOperation("bank", err, time.Since(start))
	if err != nil {
		h.writeDomainError(w, "Failed to bank surplus", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBankEntryDTO(entry))
}

// ApplyBanked draws amount from the bank of shipId/year.
func (h *Handler) ApplyBanked(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ShipID == "" || req.Year == 0 {
		writeError(w, http.StatusBadRequest, "shipId, year, and amount are required", nil)
		return
	}

	start := time.Now()
	result, err := h.Ledger.ApplyBanked(r.Context(), compliance.ShipID(req.ShipID), req.Year, req.Amount)
	ObserveOperation("apply", err, time.Since(start))
	if err != nil {
		h.writeDomainError(w, "Failed to apply banked surplus", err)
		return
	}
	writeJSON(w, http.StatusOK, ApplyResultDTO{
		ShipID:  req.ShipID,
		Year:    req.Year,
		Applied: toFloat(result.Applied),
		CBAfter: toFloat(result.CBAfter),
	})
}

// =============================================================================
// POOL HANDLERS
// =============================================================================

// CreatePool redistributes balances among the listed ships.
func (h *Handler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year == 0 || req.ShipIDs == nil {
		writeError(w, http.StatusBadRequest, "year and shipIds (array) are required", nil)
		return
	}

	ids := make([]compliance.ShipID, len(req.ShipIDs))
	for i, id := range req.ShipIDs {
		ids[i] = compliance.ShipID(id)
	}

	start := time.Now()
	pool, err := h.Pools.CreatePool(r.Context(), req.Year, ids)
	ObserveOperation("pool", err, time.Since(start))
	if err != nil {
		h.writeDomainError(w, "Failed to create pool", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPoolDTO(pool))
}

// GetPool returns a stored pool.
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.Pools.GetPool(r.Context(), compliance.PoolID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get pool", err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolDTO(pool))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and, when the store supports it, storage health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps compliance errors onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case compliance.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, compliance.ErrAlreadyBanked):
		status, code = http.StatusConflict, "already_banked"
	case compliance.IsClientError(err):
		status, code = http.StatusBadRequest, "invalid_operation"
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error().Err(err).Msg(message)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

// shipYearQuery reads the required shipId and year query parameters.
func shipYearQuery(w http.ResponseWriter, r *http.Request) (compliance.ShipID, int, bool) {
	q := r.URL.Query()
	shipID := q.Get("shipId")
	year, err := strconv.Atoi(q.Get("year"))
	if shipID == "" || err != nil || year == 0 {
		writeError(w, http.StatusBadRequest, "shipId and year are required", err)
		return "", 0, false
	}
	return compliance.ShipID(shipID), year, true
}
