/*
store.go - Persistence interfaces for routes, balances, bank entries and pools

PURPOSE:
  Defines the boundary between the engine and storage. The engine never
  reaches for a global; every store is passed in at construction.

KEY INTERFACES:
  RouteStore:   Route lookup, listing, creation, baseline flag
  BalanceStore: Memoized compliance balances keyed by (ship, year)
  BankStore:    Append-only bank ledger
  TxBankStore:  BankStore with atomic check-then-append
  PoolStore:    Whole-pool persistence (pool + members, all or nothing)

NOT FOUND:
  Find* methods return (nil, nil) when nothing is stored. Translating that
  into ErrNotFound is the engine's job, where the context is known.

IMPLEMENTATIONS:
  - compliance/store/memory.go: In-memory for tests and development
  - store/sqlstore: SQLite and PostgreSQL
*/
package compliance

import "context"

// RouteStore persists voyage records.
type RouteStore interface {
	FindRoute(ctx context.Context, routeID string) (*Route, error)
	ListRoutes(ctx context.Context, filter RouteFilter) ([]Route, error)

	// SaveRoute inserts a route. Returns ErrDuplicateRoute if the route id exists.
	SaveRoute(ctx context.Context, route Route) error

	// SetBaseline marks routeID as the only baseline among routes of year.
	SetBaseline(ctx context.Context, routeID string, year int) error
}

// BalanceStore memoizes compliance balances.
// SaveBalance is last-write-wins: concurrent first computations for the same
// key both persist, which is safe because the result is deterministic.
type BalanceStore interface {
	FindBalance(ctx context.Context, shipID ShipID, year int) (*ComplianceBalance, error)
	SaveBalance(ctx context.Context, cb ComplianceBalance) error
}

// BankStore is an append-only ledger of bank entries.
// IMPORTANT: No Update, no Delete. Draw-downs are separate applied rows.
type BankStore interface {
	// AppendBankEntry fails with ErrDuplicateIdempotencyKey when the entry's
	// key is already present.
	AppendBankEntry(ctx context.Context, entry BankEntry) error

	// BankEntries returns entries for (ship, year) in creation order.
	BankEntries(ctx context.Context, shipID ShipID, year int) ([]BankEntry, error)
}

// TxBankStore runs fn atomically: the totals fn reads cannot change before
// its writes land.
type TxBankStore interface {
	BankStore
	WithBankTx(ctx context.Context, fn func(BankStore) error) error
}

// PoolStore persists pools as a single unit.
type PoolStore interface {
	// SavePool writes the pool and every member atomically.
	SavePool(ctx context.Context, pool Pool) error
	FindPool(ctx context.Context, id PoolID) (*Pool, error)
}

// Store is everything the service layer needs.
type Store interface {
	RouteStore
	BalanceStore
	TxBankStore
	PoolStore
}
