/*
Package sqlstore provides a SQL-backed implementation of the compliance stores.

PURPOSE:
  Implements compliance.Store on top of database/sql. The same schema and
  queries serve SQLite (mattn/go-sqlite3) and PostgreSQL (pgx stdlib driver);
  only placeholder syntax and unique-violation detection differ.

KEY TABLES:
  routes:            Voyage records, one per route_id
  fuel_compositions: Per-route fuel records, ordered by position
  ship_compliance:   Memoized balances, one per (ship_id, year)
  bank_entries:      Append-only bank ledger
  pools:             Pool headers
  pool_members:      Allocations, written with their pool in one transaction

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on bank_entries
  - idempotency_key is UNIQUE, so a ship-year surplus banks once

NUMBERS AND TIMES:
  Decimals are stored as TEXT and parsed with shopspring/decimal, so no
  precision is lost in either dialect. Timestamps are fixed-width UTC
  TEXT (timeLayout), so string order is time order.

CONCURRENCY:
  A sync.RWMutex serializes writers inside one process. WithBankTx also takes
  a transaction-scoped advisory lock on PostgreSQL so several processes
  sharing one database cannot overdraw a bank.

USAGE:
  st, err := sqlstore.Open(sqlstore.DriverSQLite, "./data/compliance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/compliance"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// timeLayout keeps every fraction digit so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements compliance.Store using database/sql.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
}

var (
	_ compliance.Store       = (*Store)(nil)
	_ compliance.TxBankStore = (*Store)(nil)
)

// Open connects to the database and migrates the schema.
// For SQLite, use ":memory:" for an in-memory database.
func Open(driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open(DriverSQLite, dsn+"?_foreign_keys=on&_journal_mode=WAL")
		if err == nil {
			// One connection keeps ":memory:" databases shared and
			// serializes SQLite writers.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := New(db, driver)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// New wraps an existing connection without migrating it.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// SCHEMA
// =============================================================================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL UNIQUE,
		vessel_type TEXT NOT NULL,
		fuel_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		ghg_intensity TEXT NOT NULL,
		fuel_consumption TEXT NOT NULL,
		distance TEXT NOT NULL,
		total_emissions TEXT NOT NULL,
		is_baseline BOOLEAN NOT NULL DEFAULT FALSE,
		wind_factor TEXT NOT NULL,
		electricity_mj TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_routes_year ON routes(year)`,

	`CREATE TABLE IF NOT EXISTS fuel_compositions (
		route_id TEXT NOT NULL REFERENCES routes(route_id),
		position INTEGER NOT NULL,
		fuel_name TEXT NOT NULL,
		mass_tonnes TEXT NOT NULL,
		wtt_factor TEXT NOT NULL,
		ttw_factor TEXT NOT NULL,
		lcv_mj_per_kg TEXT NOT NULL,
		methane_slip_coeff TEXT,
		PRIMARY KEY (route_id, position)
	)`,

	`CREATE TABLE IF NOT EXISTS ship_compliance (
		ship_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		cb_gco2eq TEXT NOT NULL,
		PRIMARY KEY (ship_id, year)
	)`,

	`CREATE TABLE IF NOT EXISTS bank_entries (
		id TEXT PRIMARY KEY,
		ship_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		kind TEXT NOT NULL,
		amount_gco2eq TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bank_entries_ship_year ON bank_entries(ship_id, year)`,

	`CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pool_members (
		id TEXT PRIMARY KEY,
		pool_id TEXT NOT NULL REFERENCES pools(id),
		position INTEGER NOT NULL,
		ship_id TEXT NOT NULL,
		cb_before TEXT NOT NULL,
		cb_after TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pool_members_pool ON pool_members(pool_id)`,
}

// Migrate creates the schema. Statements run one at a time so both drivers
// accept them.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERY PLUMBING
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	return Rebind(s.driver, query)
}

// Rebind rewrites ? placeholders for the given driver.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// ROUTE STORE
// =============================================================================

const routeColumns = `id, route_id, vessel_type, fuel_type, year, ghg_intensity, fuel_consumption,
	distance, total_emissions, is_baseline, wind_factor, electricity_mj`

// SaveRoute inserts a route and its fuel compositions atomically.
func (s *Store) SaveRoute(ctx context.Context, r compliance.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO routes (`+routeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.RouteID, r.VesselType, r.FuelType, r.Year,
		r.GHGIntensity.String(), r.FuelConsumption.String(),
		r.Distance.String(), r.TotalEmissions.String(),
		r.IsBaseline, r.WindFactor.String(), r.ElectricityMJ.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return compliance.ErrDuplicateRoute
		}
		return fmt.Errorf("failed to insert route: %w", err)
	}

	for i, f := range r.FuelCompositions {
		var slip sql.NullString
		if f.MethaneSlipCoeff.Valid {
			slip = sql.NullString{String: f.MethaneSlipCoeff.Decimal.String(), Valid: true}
		}
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO fuel_compositions
			(route_id, position, fuel_name, mass_tonnes, wtt_factor, ttw_factor, lcv_mj_per_kg, methane_slip_coeff)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			r.RouteID, i, f.FuelName, f.MassTonnes.String(), f.WtTFactor.String(),
			f.TtWFactor.String(), f.LCVMJPerKg.String(), slip,
		)
		if err != nil {
			return fmt.Errorf("failed to insert fuel composition: %w", err)
		}
	}

	return tx.Commit()
}

// FindRoute retrieves a route by its route_id.
func (s *Store) FindRoute(ctx context.Context, routeID string) (*compliance.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+routeColumns+` FROM routes WHERE route_id = ?`), routeID)
	r, err := scanRoute(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fuels, err := s.loadFuels(ctx, []string{r.RouteID})
	if err != nil {
		return nil, err
	}
	r.FuelCompositions = fuels[r.RouteID]
	return &r, nil
}

// ListRoutes returns routes matching filter, ordered by route_id.
func (s *Store) ListRoutes(ctx context.Context, filter compliance.RouteFilter) ([]compliance.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.VesselType != "" {
		where = append(where, "vessel_type = ?")
		args = append(args, filter.VesselType)
	}
	if filter.FuelType != "" {
		where = append(where, "fuel_type = ?")
		args = append(args, filter.FuelType)
	}
	if filter.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, filter.Year)
	}
	query := `SELECT ` + routeColumns + ` FROM routes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY route_id"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []compliance.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return routes, nil
	}

	ids := make([]string, len(routes))
	for i, r := range routes {
		ids[i] = r.RouteID
	}
	fuels, err := s.loadFuels(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range routes {
		routes[i].FuelCompositions = fuels[routes[i].RouteID]
	}
	return routes, nil
}

// SetBaseline flags routeID and clears the flag on the rest of its year.
func (s *Store) SetBaseline(ctx context.Context, routeID string, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE routes SET is_baseline = ? WHERE year = ? AND route_id <> ?`),
		false, year, routeID,
	); err != nil {
		return fmt.Errorf("failed to clear baseline: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE routes SET is_baseline = ? WHERE route_id = ?`),
		true, routeID,
	); err != nil {
		return fmt.Errorf("failed to set baseline: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoute(row rowScanner) (compliance.Route, error) {
	var (
		r                   compliance.Route
		ghg, consumption    string
		distance, emissions string
		wind, electricity   string
	)
	err := row.Scan(
		&r.ID, &r.RouteID, &r.VesselType, &r.FuelType, &r.Year,
		&ghg, &consumption, &distance, &emissions,
		&r.IsBaseline, &wind, &electricity,
	)
	if err != nil {
		return r, err
	}

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&r.GHGIntensity, ghg},
		{&r.FuelConsumption, consumption},
		{&r.Distance, distance},
		{&r.TotalEmissions, emissions},
		{&r.WindFactor, wind},
		{&r.ElectricityMJ, electricity},
	}
	for _, f := range fields {
		if *f.dst, err = parseDecimal(f.src); err != nil {
			return r, fmt.Errorf("route %s: %w", r.RouteID, err)
		}
	}
	return r, nil
}

func (s *Store) loadFuels(ctx context.Context, routeIDs []string) (map[string][]compliance.FuelComposition, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(routeIDs)), ", ")
	args := make([]any, len(routeIDs))
	for i, id := range routeIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT route_id, fuel_name, mass_tonnes, wtt_factor, ttw_factor, lcv_mj_per_kg, methane_slip_coeff
		FROM fuel_compositions
		WHERE route_id IN (`+placeholders+`)
		ORDER BY route_id, position`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fuel compositions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]compliance.FuelComposition)
	for rows.Next() {
		var (
			routeID, name  string
			mass, wtt, ttw string
			lcv            string
			slip           sql.NullString
		)
		if err := rows.Scan(&routeID, &name, &mass, &wtt, &ttw, &lcv, &slip); err != nil {
			return nil, fmt.Errorf("failed to scan fuel composition: %w", err)
		}
		f := compliance.FuelComposition{FuelName: name}
		for _, p := range []struct {
			dst *decimal.Decimal
			src string
		}{{&f.MassTonnes, mass}, {&f.WtTFactor, wtt}, {&f.TtWFactor, ttw}, {&f.LCVMJPerKg, lcv}} {
			if *p.dst, err = parseDecimal(p.src); err != nil {
				return nil, fmt.Errorf("fuel %s on %s: %w", name, routeID, err)
			}
		}
		if slip.Valid {
			v, err := parseDecimal(slip.String)
			if err != nil {
				return nil, fmt.Errorf("fuel %s on %s: %w", name, routeID, err)
			}
			f.MethaneSlipCoeff = decimal.NewNullDecimal(v)
		}
		out[routeID] = append(out[routeID], f)
	}
	return out, rows.Err()
}

// =============================================================================
// BALANCE STORE
// =============================================================================

// FindBalance retrieves the memoized balance for (ship, year).
func (s *Store) FindBalance(ctx context.Context, shipID compliance.ShipID, year int) (*compliance.ComplianceBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT cb_gco2eq FROM ship_compliance WHERE ship_id = ? AND year = ?`),
		string(shipID), year,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cb, err := parseDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("balance %s/%d: %w", shipID, year, err)
	}
	return &compliance.ComplianceBalance{ShipID: shipID, Year: year, CBGco2eq: cb}, nil
}

// SaveBalance upserts the balance (last write wins).
func (s *Store) SaveBalance(ctx context.Context, cb compliance.ComplianceBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO ship_compliance (ship_id, year, cb_gco2eq)
		VALUES (?, ?, ?)
		ON CONFLICT(ship_id, year) DO UPDATE SET cb_gco2eq = excluded.cb_gco2eq`),
		string(cb.ShipID), cb.Year, cb.CBGco2eq.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// =============================================================================
// BANK STORE - Append-only
// =============================================================================

// AppendBankEntry adds a row to the ledger.
func (s *Store) AppendBankEntry(ctx context.Context, entry compliance.BankEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendEntry(ctx, s.db, entry)
}

func (s *Store) appendEntry(ctx context.Context, q querier, entry compliance.BankEntry) error {
	_, err := q.ExecContext(ctx, s.rebind(`
		INSERT INTO bank_entries (id, ship_id, year, kind, amount_gco2eq, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		string(entry.ID), string(entry.ShipID), entry.Year, string(entry.Kind),
		entry.AmountGco2eq.String(), nullString(entry.IdempotencyKey),
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return compliance.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append bank entry: %w", err)
	}
	return nil
}

// BankEntries returns the ledger rows for (ship, year) in insertion order.
func (s *Store) BankEntries(ctx context.Context, shipID compliance.ShipID, year int) ([]compliance.BankEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadEntries(ctx, s.db, shipID, year)
}

func (s *Store) loadEntries(ctx context.Context, q querier, shipID compliance.ShipID, year int) ([]compliance.BankEntry, error) {
	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT id, ship_id, year, kind, amount_gco2eq, idempotency_key, created_at
		FROM bank_entries
		WHERE ship_id = ? AND year = ?
		ORDER BY created_at ASC, id ASC`),
		string(shipID), year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank entries: %w", err)
	}
	defer rows.Close()

	var entries []compliance.BankEntry
	for rows.Next() {
		var (
			e              compliance.BankEntry
			id, ship       string
			kind, amount   string
			idempotencyKey sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&id, &ship, &e.Year, &kind, &amount, &idempotencyKey, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan bank entry: %w", err)
		}
		e.ID = compliance.EntryID(id)
		e.ShipID = compliance.ShipID(ship)
		e.Kind = compliance.BankEntryKind(kind)
		e.IdempotencyKey = idempotencyKey.String
		if e.AmountGco2eq, err = parseDecimal(amount); err != nil {
			return nil, fmt.Errorf("bank entry %s: %w", id, err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// WithBankTx runs fn inside a database transaction.
func (s *Store) WithBankTx(ctx context.Context, fn func(compliance.BankStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if s.driver == DriverPostgres {
		if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('bank_entries'))`); err != nil {
			return fmt.Errorf("failed to lock bank: %w", err)
		}
	}

	if err := fn(&txBankStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txBankStore routes ledger access through the open transaction. The parent
// lock is already held.
type txBankStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txBankStore) AppendBankEntry(ctx context.Context, entry compliance.BankEntry) error {
	return ts.parent.appendEntry(ctx, ts.tx, entry)
}

func (ts *txBankStore) BankEntries(ctx context.Context, shipID compliance.ShipID, year int) ([]compliance.BankEntry, error) {
	return ts.parent.loadEntries(ctx, ts.tx, shipID, year)
}

// =============================================================================
// POOL STORE
// =============================================================================

// SavePool writes the pool and all members in one transaction.
func (s *Store) SavePool(ctx context.Context, pool compliance.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO pools (id, year, created_at) VALUES (?, ?, ?)`),
		string(pool.ID), pool.Year, pool.CreatedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("failed to insert pool: %w", err)
	}

	for i, m := range pool.Members {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO pool_members (id, pool_id, position, ship_id, cb_before, cb_after)
			VALUES (?, ?, ?, ?, ?, ?)`),
			string(m.ID), string(pool.ID), i, string(m.ShipID),
			m.CBBefore.String(), m.CBAfter.String(),
		); err != nil {
			return fmt.Errorf("failed to insert pool member %s: %w", m.ShipID, err)
		}
	}

	return tx.Commit()
}

// FindPool retrieves a pool with its members in allocation order.
func (s *Store) FindPool(ctx context.Context, id compliance.PoolID) (*compliance.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool := compliance.Pool{ID: id}
	var createdAt string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT year, created_at FROM pools WHERE id = ?`), string(id),
	).Scan(&pool.Year, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pool.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, ship_id, cb_before, cb_after
		FROM pool_members WHERE pool_id = ?
		ORDER BY position`), string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query pool members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memberID, shipID, before, after string
		if err := rows.Scan(&memberID, &shipID, &before, &after); err != nil {
			return nil, fmt.Errorf("failed to scan pool member: %w", err)
		}
		m := compliance.PoolMember{ID: compliance.EntryID(memberID), PoolID: id, ShipID: compliance.ShipID(shipID)}
		if m.CBBefore, err = parseDecimal(before); err != nil {
			return nil, err
		}
		if m.CBAfter, err = parseDecimal(after); err != nil {
			return nil, err
		}
		pool.Members = append(pool.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &pool, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"pool_members", "pools", "bank_entries", "ship_compliance", "fuel_compositions", "routes"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
