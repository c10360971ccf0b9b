package store

import "time"

// SetClock replaces the clock used to stamp new ledger entries.
func (r *LedgerRepository) SetClock(now func() time.Time) {
	r.now = now
}
