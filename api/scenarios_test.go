/*
scenarios_test.go - Tests for demo scenarios

Each scenario must leave the store in the state its description promises,
and loading twice must not fail on leftovers from the first load.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/compliance"
)

func TestScenario_ListAndCurrent(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestScenario_ReferenceFleet(t *testing.T) {
	// GIVEN: a store with an unrelated route
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/routes", `{"routeId": "STALE", "year": 2024}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN
	rec = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "reference-fleet"})

	// THEN: the store holds exactly the reference fleet
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	routes, err := s.h.Catalog.ListRoutes(context.Background(), compliance.RouteFilter{})
	require.NoError(t, err)
	require.Len(t, routes, 5)
	for _, r := range routes {
		assert.NotEqual(t, "STALE", r.RouteID)
		assert.Equal(t, r.RouteID == "R001", r.IsBaseline, r.RouteID)
	}

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "reference-fleet", decode[ScenarioDTO](t, rec).ID)
}

func TestScenario_Banking(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "banking"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	entries, err := s.h.Ledger.Records(context.Background(), "R002", 2024)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, compliance.BankKindBanked, entries[0].Kind)
	assert.Equal(t, compliance.BankKindApplied, entries[1].Kind)
	assert.Equal(t, "3653798400", compliance.SumBankEntries(entries).String())
}

func TestScenario_Pooling(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "pooling"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/compliance/cb?shipId=R003&year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, -143748600.0, decode[ComplianceBalanceDTO](t, rec).CBGco2eq, 1e-3)
}

func TestScenario_Unknown(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeedReferenceRoutes_IsIdempotent(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, SeedReferenceRoutes(ctx, s.h.Catalog))
	require.NoError(t, SeedReferenceRoutes(ctx, s.h.Catalog))

	routes, err := s.h.Catalog.ListRoutes(ctx, compliance.RouteFilter{})
	require.NoError(t, err)
	assert.Len(t, routes, len(ReferenceRoutes()))
}
