package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RouteCatalog lists routes, maintains the per-year baseline and compares
// routes against it.
type RouteCatalog struct {
	Store  RouteStore
	Engine *BalanceEngine
	NewID  func() string
}

func NewRouteCatalog(store RouteStore, engine *BalanceEngine) *RouteCatalog {
	return &RouteCatalog{Store: store, Engine: engine, NewID: uuid.NewString}
}

// RouteComparison is one non-baseline route measured against the baseline.
type RouteComparison struct {
	Route              Route
	ActualGhgIntensity decimal.Decimal
	PercentDiff        decimal.Decimal
	Compliant          bool
}

// Comparison is the baseline plus every other route.
type Comparison struct {
	Baseline                Route
	BaselineActualIntensity decimal.Decimal
	TargetIntensity         decimal.Decimal
	Comparisons             []RouteComparison
}

func (c *RouteCatalog) ListRoutes(ctx context.Context, filter RouteFilter) ([]Route, error) {
	routes, err := c.Store.ListRoutes(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return routes, nil
}

// CreateRoute validates and stores a new route. Wind factor defaults to 1.
func (c *RouteCatalog) CreateRoute(ctx context.Context, route Route) (Route, error) {
	if route.RouteID == "" {
		return Route{}, invalidf("route id is required")
	}
	if route.FuelConsumption.IsNegative() {
		return Route{}, invalidf("fuel consumption must not be negative (got %s)", route.FuelConsumption)
	}
	if route.ElectricityMJ.IsNegative() {
		return Route{}, invalidf("electricity must not be negative (got %s MJ)", route.ElectricityMJ)
	}
	for _, f := range route.FuelCompositions {
		if err := f.Validate(); err != nil {
			return Route{}, err
		}
	}
	if route.WindFactor.IsZero() {
		route.WindFactor = decimal.NewFromInt(1)
	}
	if route.ID == "" {
		route.ID = c.NewID()
	}

	if err := c.Store.SaveRoute(ctx, route); err != nil {
		if errors.Is(err, ErrDuplicateRoute) {
			return Route{}, invalidf("route %s already exists", route.RouteID)
		}
		return Route{}, fmt.Errorf("save route %s: %w", route.RouteID, err)
	}
	return route, nil
}

// SetBaseline makes routeID the single baseline among routes of its year.
func (c *RouteCatalog) SetBaseline(ctx context.Context, routeID string) (Route, error) {
	route, err := c.find(ctx, routeID)
	if err != nil {
		return Route{}, err
	}
	if err := c.Store.SetBaseline(ctx, routeID, route.Year); err != nil {
		return Route{}, fmt.Errorf("set baseline %s: %w", routeID, err)
	}
	route.IsBaseline = true
	return route, nil
}

// Breakdown returns the intensity calculation for one route.
func (c *RouteCatalog) Breakdown(ctx context.Context, routeID string) (Route, IntensityBreakdown, error) {
	route, err := c.find(ctx, routeID)
	if err != nil {
		return Route{}, IntensityBreakdown{}, err
	}
	b, err := c.Engine.Evaluate(route)
	if err != nil {
		return Route{}, IntensityBreakdown{}, err
	}
	return route, b, nil
}

// Compare measures every non-baseline route against the baseline:
//
//	percentDiff = (actual / baselineActual - 1) × 100
//	compliant   = actual <= target
func (c *RouteCatalog) Compare(ctx context.Context) (Comparison, error) {
	routes, err := c.ListRoutes(ctx, RouteFilter{})
	if err != nil {
		return Comparison{}, err
	}

	var baseline *Route
	for i := range routes {
		if routes[i].IsBaseline {
			baseline = &routes[i]
			break
		}
	}
	if baseline == nil {
		return Comparison{}, &NotFoundError{Kind: "baseline"}
	}

	base, err := c.Engine.Evaluate(*baseline)
	if err != nil {
		return Comparison{}, err
	}

	target := c.Engine.Settings.TargetIntensity
	out := Comparison{
		Baseline:                *baseline,
		BaselineActualIntensity: base.Actual,
		TargetIntensity:         target,
		Comparisons:             []RouteComparison{},
	}
	hundred := decimal.NewFromInt(100)
	for _, r := range routes {
		if r.IsBaseline {
			continue
		}
		b, err := c.Engine.Evaluate(r)
		if err != nil {
			return Comparison{}, err
		}
		diff := decimal.Zero
		if !base.Actual.IsZero() {
			diff = b.Actual.Div(base.Actual).Sub(decimal.NewFromInt(1)).Mul(hundred)
		}
		out.Comparisons = append(out.Comparisons, RouteComparison{
			Route:              r,
			ActualGhgIntensity: b.Actual,
			PercentDiff:        diff,
			Compliant:          b.Actual.LessThanOrEqual(target),
		})
	}
	return out, nil
}

func (c *RouteCatalog) find(ctx context.Context, routeID string) (Route, error) {
	route, err := c.Store.FindRoute(ctx, routeID)
	if err != nil {
		return Route{}, fmt.Errorf("load route %s: %w", routeID, err)
	}
	if route == nil {
		return Route{}, &NotFoundError{Kind: "route", Key: routeID}
	}
	return *route, nil
}
