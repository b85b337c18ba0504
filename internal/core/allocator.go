package core

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Allocation takes Quantity units from Balance.
type Allocation struct {
	Balance  StockBalance
	Quantity decimal.Decimal
}

// fifoCompare orders balances oldest lot first, breaking ties by lot id and
// then location id. It is also the global lock acquisition order.
func fifoCompare(a, b StockBalance) int {
	if c := a.LotReceivedAt.Compare(b.LotReceivedAt); c != 0 {
		return c
	}
	if a.LotID != b.LotID {
		return a.LotID - b.LotID
	}
	return a.LocationID - b.LocationID
}

// SortFIFO sorts balances in place into FIFO order.
func SortFIFO(balances []StockBalance) {
	slices.SortStableFunc(balances, fifoCompare)
}

// AllocateFIFO picks quantities from candidates, oldest lot first, until
// needed is covered or stock runs out. The returned quantities sum to
// min(needed, total available); balances with nothing available are skipped
// and no balance gives more than its available quantity.
//
// Candidates must be locked by the caller for the duration of the decision
// and the writes that follow it.
func AllocateFIFO(candidates []StockBalance, needed decimal.Decimal) []Allocation {
	if !needed.IsPositive() {
		return nil
	}

	ordered := slices.Clone(candidates)
	SortFIFO(ordered)

	remaining := needed
	var out []Allocation
	for _, b := range ordered {
		if !remaining.IsPositive() {
			break
		}
		available := b.Available()
		if !available.IsPositive() {
			continue
		}
		take := decimal.Min(available, remaining)
		out = append(out, Allocation{Balance: b, Quantity: take})
		remaining = remaining.Sub(take)
	}
	return out
}

// TotalAllocated sums the quantities of allocs.
func TotalAllocated(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Quantity)
	}
	return total
}

// usableCandidates keeps balances of partID whose lot has not expired at asOf.
func usableCandidates(balances []StockBalance, partID int, asOf time.Time) []StockBalance {
	var out []StockBalance
	for _, b := range balances {
		if b.PartID != partID {
			continue
		}
		if b.LotExpiresAt != nil && !b.LotExpiresAt.After(asOf) {
			continue
		}
		out = append(out, b)
	}
	return out
}
