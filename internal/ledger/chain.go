package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// FormatDate renders a movement date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// before reports whether a precedes b in chain order.
func before(a, b Movement) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// SortNewestFirst orders movements by date descending, latest insertion first.
func SortNewestFirst(ms []Movement) {
	sort.SliceStable(ms, func(i, j int) bool { return before(ms[j], ms[i]) })
}

// SortChronological orders movements in chain order.
func SortChronological(ms []Movement) {
	sort.SliceStable(ms, func(i, j int) bool { return before(ms[i], ms[j]) })
}

// ChainReport describes a replay of one account's chain from its initial balance.
type ChainReport struct {
	AccountNumber string
	Checked       int
	// Stale holds the movements whose stored balance differs from the replayed one,
	// carrying the replayed balance.
	Stale []Movement
	// FirstNegative is the id of the first movement whose replayed balance is below zero.
	FirstNegative string
	Closing       decimal.Decimal
}

// Consistent reports whether every stored balance matched the replay.
func (r ChainReport) Consistent() bool {
	return len(r.Stale) == 0
}

// replay walks chain (in chain order) from initial and collects stale balances.
func replay(accountNumber string, initial decimal.Decimal, chain []Movement) ChainReport {
	report := ChainReport{AccountNumber: accountNumber, Closing: initial}
	running := initial
	for _, m := range chain {
		running = running.Add(m.Value)
		report.Checked++
		if running.IsNegative() && report.FirstNegative == "" {
			report.FirstNegative = m.ID
		}
		if !m.Balance.Equal(running) {
			fixed := m
			fixed.Balance = running
			report.Stale = append(report.Stale, fixed)
		}
	}
	report.Closing = running
	return report
}

// revisions pairs each replayed movement in stale with its stored form in chain.
func revisions(chain, stale []Movement) []Revision {
	stored := make(map[string]Movement, len(chain))
	for _, m := range chain {
		stored[m.ID] = m
	}
	out := make([]Revision, len(stale))
	for i, m := range stale {
		prev, ok := stored[m.ID]
		if !ok {
			prev = m
		}
		out[i] = Revision{Before: prev, After: m}
	}
	return out
}
