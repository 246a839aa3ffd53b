package compliance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/compliance"
)

func TestCatalog_CreateDefaultsWindFactor(t *testing.T) {
	s := newServices(t)

	route, err := s.catalog.CreateRoute(context.Background(), scalarRoute("R9", "80", "10"))

	require.NoError(t, err)
	assert.NotEmpty(t, route.ID)
	assertDecEqual(t, "1", route.WindFactor)
}

func TestCatalog_CreateRejectsDuplicate(t *testing.T) {
	s := newServices(t)
	s.addRoute(t, scalarRoute("R9", "80", "10"))

	_, err := s.catalog.CreateRoute(context.Background(), scalarRoute("R9", "70", "5"))

	assert.ErrorIs(t, err, compliance.ErrInvalidOperation)
}

func TestCatalog_CreateValidates(t *testing.T) {
	tests := []struct {
		name  string
		route compliance.Route
	}{
		{"missing id", scalarRoute("", "80", "10")},
		{"negative consumption", scalarRoute("R1", "80", "-1")},
		{"negative electricity", func() compliance.Route {
			r := scalarRoute("R1", "80", "10")
			r.ElectricityMJ = d("-5")
			return r
		}()},
		{"bad fuel", func() compliance.Route {
			r := scalarRoute("R1", "80", "10")
			r.FuelCompositions = []compliance.FuelComposition{fuel("X", "1", "10", "0", "70")}
			return r
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServices(t)
			_, err := s.catalog.CreateRoute(context.Background(), tt.route)
			assert.ErrorIs(t, err, compliance.ErrInvalidOperation)
		})
	}
}

func TestCatalog_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	s.addRoute(t, hfoRoute("R001"))
	s.addRoute(t, lngRoute("R002"))
	later := hfoRoute("R004")
	later.Year = 2025
	s.addRoute(t, later)

	all, err := s.catalog.ListRoutes(ctx, compliance.RouteFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "R001", all[0].RouteID)

	hfo, err := s.catalog.ListRoutes(ctx, compliance.RouteFilter{FuelType: "HFO"})
	require.NoError(t, err)
	assert.Len(t, hfo, 2)

	hfo2025, err := s.catalog.ListRoutes(ctx, compliance.RouteFilter{FuelType: "HFO", Year: 2025})
	require.NoError(t, err)
	require.Len(t, hfo2025, 1)
	assert.Equal(t, "R004", hfo2025[0].RouteID)

	bulk, err := s.catalog.ListRoutes(ctx, compliance.RouteFilter{VesselType: "BulkCarrier"})
	require.NoError(t, err)
	require.Len(t, bulk, 1)
	assert.Equal(t, "R002", bulk[0].RouteID)
}

func TestCatalog_SetBaselineIsExclusivePerYear(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	s.addRoute(t, hfoRoute("R001"))
	s.addRoute(t, lngRoute("R002"))
	other := hfoRoute("R004")
	other.Year = 2025
	s.addRoute(t, other)

	_, err := s.catalog.SetBaseline(ctx, "R004")
	require.NoError(t, err)
	_, err = s.catalog.SetBaseline(ctx, "R001")
	require.NoError(t, err)
	_, err = s.catalog.SetBaseline(ctx, "R002")
	require.NoError(t, err)

	routes, err := s.catalog.ListRoutes(ctx, compliance.RouteFilter{})
	require.NoError(t, err)
	baselines := map[string]bool{}
	for _, r := range routes {
		baselines[r.RouteID] = r.IsBaseline
	}
	assert.Equal(t, map[string]bool{"R001": false, "R002": true, "R004": true}, baselines)
}

func TestCatalog_SetBaselineUnknownRoute(t *testing.T) {
	s := newServices(t)
	_, err := s.catalog.SetBaseline(context.Background(), "NOPE")
	assert.ErrorIs(t, err, compliance.ErrNotFound)
}

func TestCatalog_Breakdown(t *testing.T) {
	s := newServices(t)
	s.addRoute(t, hfoRoute("R001"))
	s.addRoute(t, scalarRoute("S2", "80", "10"))

	_, b, err := s.catalog.Breakdown(context.Background(), "R001")
	require.NoError(t, err)
	assert.False(t, b.Fallback)
	assertDecEqual(t, "15", b.WtT)
	assertDecEqual(t, "75", b.TtW)
	assertDecEqual(t, "90", b.Actual)
	assertDecEqual(t, "480000000", b.EnergyInScope)

	_, fb, err := s.catalog.Breakdown(context.Background(), "S2")
	require.NoError(t, err)
	assert.True(t, fb.Fallback)
	assertDecEqual(t, "80", fb.Actual)
	assertDecEqual(t, "410000", fb.EnergyInScope)
}

func TestCatalog_Compare(t *testing.T) {
	// GIVEN: HFO baseline at 90, LNG at 76.65
	ctx := context.Background()
	s := newServices(t)
	s.addRoute(t, hfoRoute("R001"))
	s.addRoute(t, lngRoute("R002"))
	_, err := s.catalog.SetBaseline(ctx, "R001")
	require.NoError(t, err)

	// WHEN
	cmp, err := s.catalog.Compare(ctx)

	// THEN: (76.65 / 90 - 1) × 100
	require.NoError(t, err)
	assert.Equal(t, "R001", cmp.Baseline.RouteID)
	assertDecEqual(t, "90", cmp.BaselineActualIntensity)
	assertDecEqual(t, "89.3368", cmp.TargetIntensity)
	require.Len(t, cmp.Comparisons, 1)
	c := cmp.Comparisons[0]
	assert.Equal(t, "R002", c.Route.RouteID)
	assertDecEqual(t, "76.65", c.ActualGhgIntensity)
	assert.Equal(t, "-14.83", c.PercentDiff.StringFixed(2))
	assert.True(t, c.Compliant)
}

func TestCatalog_CompareWithoutBaseline(t *testing.T) {
	s := newServices(t)
	s.addRoute(t, hfoRoute("R001"))

	_, err := s.catalog.Compare(context.Background())

	var nf *compliance.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "baseline", nf.Kind)
}
