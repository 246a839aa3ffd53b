// Package store provides in-memory implementations of the compliance stores.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/compliance-engine/compliance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	routes      map[string]compliance.Route
	balances    map[key]compliance.ComplianceBalance
	bank        map[key][]compliance.BankEntry
	idempotency map[string]bool
	pools       map[compliance.PoolID]compliance.Pool
}

type key struct {
	ShipID compliance.ShipID
	Year   int
}

func NewMemory() *Memory {
	return &Memory{
		routes:      make(map[string]compliance.Route),
		balances:    make(map[key]compliance.ComplianceBalance),
		bank:        make(map[key][]compliance.BankEntry),
		idempotency: make(map[string]bool),
		pools:       make(map[compliance.PoolID]compliance.Pool),
	}
}

var _ compliance.Store = (*Memory)(nil)

// =============================================================================
// ROUTES
// =============================================================================

func (m *Memory) FindRoute(_ context.Context, routeID string) (*compliance.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.routes[routeID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) ListRoutes(_ context.Context, filter compliance.RouteFilter) ([]compliance.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []compliance.Route
	for _, r := range m.routes {
		if filter.Matches(r) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RouteID < result[j].RouteID })
	return result, nil
}

func (m *Memory) SaveRoute(_ context.Context, route compliance.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.routes[route.RouteID]; exists {
		return compliance.ErrDuplicateRoute
	}
	m.routes[route.RouteID] = route
	return nil
}

func (m *Memory) SetBaseline(_ context.Context, routeID string, year int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.routes {
		switch {
		case id == routeID:
			r.IsBaseline = true
		case r.Year == year:
			r.IsBaseline = false
		default:
			continue
		}
		m.routes[id] = r
	}
	return nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (m *Memory) FindBalance(_ context.Context, shipID compliance.ShipID, year int) (*compliance.ComplianceBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cb, ok := m.balances[key{shipID, year}]
	if !ok {
		return nil, nil
	}
	return &cb, nil
}

// SaveBalance overwrites any existing value (last write wins).
func (m *Memory) SaveBalance(_ context.Context, cb compliance.ComplianceBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[key{cb.ShipID, cb.Year}] = cb
	return nil
}

// =============================================================================
// BANK LEDGER - Append-only
// =============================================================================

func (m *Memory) AppendBankEntry(_ context.Context, entry compliance.BankEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(entry)
}

func (m *Memory) appendLocked(entry compliance.BankEntry) error {
	if entry.IdempotencyKey != "" && m.idempotency[entry.IdempotencyKey] {
		return compliance.ErrDuplicateIdempotencyKey
	}
	k := key{entry.ShipID, entry.Year}
	m.bank[k] = append(m.bank[k], entry)
	if entry.IdempotencyKey != "" {
		m.idempotency[entry.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) BankEntries(_ context.Context, shipID compliance.ShipID, year int) ([]compliance.BankEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(shipID, year), nil
}

func (m *Memory) entriesLocked(shipID compliance.ShipID, year int) []compliance.BankEntry {
	entries := m.bank[key{shipID, year}]
	result := make([]compliance.BankEntry, len(entries))
	copy(result, entries)
	return result
}

// WithBankTx runs fn under the write lock.
// Simulated with a snapshot + rollback on error.
func (m *Memory) WithBankTx(_ context.Context, fn func(compliance.BankStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotBank()
	if err := fn(&bankTxView{parent: m}); err != nil {
		m.bank, m.idempotency = snapshot.bank, snapshot.idempotency
		return err
	}
	return nil
}

type bankSnapshot struct {
	bank        map[key][]compliance.BankEntry
	idempotency map[string]bool
}

func (m *Memory) snapshotBank() bankSnapshot {
	bankCopy := make(map[key][]compliance.BankEntry, len(m.bank))
	for k, v := range m.bank {
		bankCopy[k] = append([]compliance.BankEntry{}, v...)
	}
	idempCopy := make(map[string]bool, len(m.idempotency))
	for k, v := range m.idempotency {
		idempCopy[k] = v
	}
	return bankSnapshot{bank: bankCopy, idempotency: idempCopy}
}

// bankTxView accesses the parent without locking; the lock is held by WithBankTx.
type bankTxView struct {
	parent *Memory
}

func (tv *bankTxView) AppendBankEntry(_ context.Context, entry compliance.BankEntry) error {
	return tv.parent.appendLocked(entry)
}

func (tv *bankTxView) BankEntries(_ context.Context, shipID compliance.ShipID, year int) ([]compliance.BankEntry, error) {
	return tv.parent.entriesLocked(shipID, year), nil
}

// =============================================================================
// POOLS
// =============================================================================

func (m *Memory) SavePool(_ context.Context, pool compliance.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := pool
	stored.Members = append([]compliance.PoolMember{}, pool.Members...)
	m.pools[pool.ID] = stored
	return nil
}

func (m *Memory) FindPool(_ context.Context, id compliance.PoolID) (*compliance.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[id]
	if !ok {
		return nil, nil
	}
	p.Members = append([]compliance.PoolMember{}, p.Members...)
	return &p, nil
}

// PoolCount reports how many pools are stored. Used by tests.
func (m *Memory) PoolCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.routes = make(map[string]compliance.Route)
	m.balances = make(map[key]compliance.ComplianceBalance)
	m.bank = make(map[key][]compliance.BankEntry)
	m.idempotency = make(map[string]bool)
	m.pools = make(map[compliance.PoolID]compliance.Pool)
	return nil
}
