/*
banking.go - Banking ledger

PURPOSE:
  Records surplus a ship banks for a year and lets part of it be drawn down
  again. The bank total for (ship, year) is what the adjusted balance of
  year+1 picks up.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Entries are never edited or removed
  2. POSITIVE ONLY: Only a strictly positive balance can be banked
  3. BOUNDED: An applied amount never exceeds the current bank total
  4. ONCE PER YEAR: A ship-year surplus is banked at most once

TOTALS:
  totalBanked(ship, year) = Σ banked rows - Σ applied rows

  Banking always moves the whole current surplus. Banking is keyed by
  "bank:<ship>:<year>", so a second call is rejected instead of counting the
  same surplus twice.

APPLY:
  ApplyBanked writes an applied row against (ship, year). The remainder is
  what flows into the adjusted balance of year+1. The returned cbAfter is
  the adjusted balance of (ship, year) itself, which reads the bank of year-1.

EXAMPLE FLOW:
  1. 2024 balance +1000: BankSurplus -> banked 1000
  2. ApplyBanked(2024, 400) -> applied 400, total 600
  3. Adjusted 2025 = base(2025) + 600
*/
package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ApplyResult is returned by ApplyBanked.
type ApplyResult struct {
	Applied decimal.Decimal
	CBAfter decimal.Decimal
}

// BankingLedger banks and applies surplus.
type BankingLedger struct {
	Store    BankStore
	Balances BalanceSource
	Logger   zerolog.Logger

	// Now and NewID are swappable for tests.
	Now   func() time.Time
	NewID func() string
}

func NewBankingLedger(store BankStore, balances BalanceSource, logger zerolog.Logger) *BankingLedger {
	return &BankingLedger{
		Store:    store,
		Balances: balances,
		Logger:   logger.With().Str("component", "banking_ledger").Logger(),
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

func bankKey(shipID ShipID, year int) string {
	return fmt.Sprintf("bank:%s:%d", shipID, year)
}

// BankSurplus banks the whole current surplus of (ship, year).
func (l *BankingLedger) BankSurplus(ctx context.Context, shipID ShipID, year int) (BankEntry, error) {
	cb, err := l.Balances.GetComplianceBalance(ctx, shipID, year)
	if err != nil {
		return BankEntry{}, err
	}
	if !cb.CBGco2eq.IsPositive() {
		return BankEntry{}, &NonPositiveBalanceError{ShipID: shipID, Year: year, Balance: cb.CBGco2eq}
	}

	entry := BankEntry{
		ID:             EntryID(l.NewID()),
		ShipID:         shipID,
		Year:           year,
		Kind:           BankKindBanked,
		AmountGco2eq:   cb.CBGco2eq,
		IdempotencyKey: bankKey(shipID, year),
		CreatedAt:      l.Now(),
	}
	if err := l.Store.AppendBankEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return BankEntry{}, fmt.Errorf("%w for %s/%d", ErrAlreadyBanked, shipID, year)
		}
		return BankEntry{}, fmt.Errorf("append bank entry: %w", err)
	}

	l.Logger.Info().
		Str("ship_id", string(shipID)).
		Int("year", year).
		Str("amount_gco2eq", entry.AmountGco2eq.StringFixed(2)).
		Msg("surplus banked")
	return entry, nil
}

// ApplyBanked draws amount from the bank of (ship, year).
// cbAfter is the adjusted balance of (ship, year). It only depends on the
// bank of year-1, so it is read before the draw-down and a failed read
// writes nothing.
func (l *BankingLedger) ApplyBanked(ctx context.Context, shipID ShipID, year int, amount decimal.Decimal) (ApplyResult, error) {
	if !amount.IsPositive() {
		return ApplyResult{}, invalidf("apply amount must be positive (got %s)", amount)
	}

	adjusted, err := l.Balances.GetAdjustedComplianceBalance(ctx, shipID, year)
	if err != nil {
		return ApplyResult{}, err
	}

	apply := func(store BankStore) error {
		available, err := totalBanked(ctx, store, shipID, year)
		if err != nil {
			return err
		}
		if amount.GreaterThan(available) {
			return &InsufficientBankError{ShipID: shipID, Year: year, Requested: amount, Available: available}
		}
		return store.AppendBankEntry(ctx, BankEntry{
			ID:           EntryID(l.NewID()),
			ShipID:       shipID,
			Year:         year,
			Kind:         BankKindApplied,
			AmountGco2eq: amount,
			CreatedAt:    l.Now(),
		})
	}

	if tx, ok := l.Store.(TxBankStore); ok {
		err = tx.WithBankTx(ctx, apply)
	} else {
		err = apply(l.Store)
	}
	if err != nil {
		return ApplyResult{}, err
	}

	l.Logger.Info().
		Str("ship_id", string(shipID)).
		Int("year", year).
		Str("applied_gco2eq", amount.StringFixed(2)).
		Msg("banked surplus applied")
	return ApplyResult{Applied: amount, CBAfter: adjusted.CBGco2eq}, nil
}

// TotalBanked returns the net bank total for (ship, year); zero if none.
func (l *BankingLedger) TotalBanked(ctx context.Context, shipID ShipID, year int) (decimal.Decimal, error) {
	return totalBanked(ctx, l.Store, shipID, year)
}

// Records lists every ledger row for (ship, year).
func (l *BankingLedger) Records(ctx context.Context, shipID ShipID, year int) ([]BankEntry, error) {
	entries, err := l.Store.BankEntries(ctx, shipID, year)
	if err != nil {
		return nil, fmt.Errorf("load bank entries %s/%d: %w", shipID, year, err)
	}
	return entries, nil
}

func totalBanked(ctx context.Context, store BankStore, shipID ShipID, year int) (decimal.Decimal, error) {
	entries, err := store.BankEntries(ctx, shipID, year)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load bank entries %s/%d: %w", shipID, year, err)
	}
	return SumBankEntries(entries), nil
}

// SumBankEntries replays entries into a net total.
func SumBankEntries(entries []BankEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Signed())
	}
	return total
}
