package services

import (
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
)

// evalPeriod is a half-open evaluation window [Start, End).
type evalPeriod struct {
	Start time.Time
	End   time.Time
}

// trailingPeriods returns the n most recent evaluation periods, oldest
// first. With calendar anchoring these are the last n completed calendar
// months — the running month is excluded, since a partial month cannot
// fairly meet a full-month net-earning bar. Otherwise they are n
// back-to-back windows of `days` days ending at now.
func trailingPeriods(now time.Time, n, days int, calendarMonths bool) []evalPeriod {
	if n <= 0 {
		return nil
	}
	periods := make([]evalPeriod, 0, n)
	if calendarMonths {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		for i := n; i >= 1; i-- {
			periods = append(periods, evalPeriod{
				Start: monthStart.AddDate(0, -i, 0),
				End:   monthStart.AddDate(0, -i+1, 0),
			})
		}
		return periods
	}
	if days <= 0 {
		days = 30
	}
	for i := n; i >= 1; i-- {
		periods = append(periods, evalPeriod{
			Start: now.AddDate(0, 0, -i*days),
			End:   now.AddDate(0, 0, -(i-1)*days),
		})
	}
	return periods
}

// trailingMonths returns the last n completed calendar months, oldest
// first. Used by the downgrade evaluation.
func trailingMonths(now time.Time, n int) []evalPeriod {
	return trailingPeriods(now, n, 0, true)
}

// netEarned computes the period's net earning from completed transactions:
// earns plus positive adjusts, minus redemptions. Expiries and conversions
// do not count against earning behavior.
func netEarned(txs []*models.Transaction, p evalPeriod) int64 {
	var net int64
	for _, tx := range txs {
		if tx.CreatedAt.Before(p.Start) || !tx.CreatedAt.Before(p.End) {
			continue
		}
		switch tx.Type {
		case models.TransactionTypeEarn:
			net += tx.Points
		case models.TransactionTypeAdjust:
			if tx.Points > 0 {
				net += tx.Points
			}
		case models.TransactionTypeRedeem:
			net += tx.Points // stored negative
		}
	}
	return net
}

// earnedTotal sums only earn transactions inside the period.
func earnedTotal(txs []*models.Transaction, p evalPeriod) int64 {
	var total int64
	for _, tx := range txs {
		if tx.CreatedAt.Before(p.Start) || !tx.CreatedAt.Before(p.End) {
			continue
		}
		if tx.Type == models.TransactionTypeEarn {
			total += tx.Points
		}
	}
	return total
}

// longestQualifyingRun scans periods oldest to newest and returns the
// longest run of consecutive qualifying periods.
func longestQualifyingRun(results []models.PeriodResult) int {
	longest, run := 0, 0
	for _, r := range results {
		if r.Qualified {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

// qualifyingCount counts qualifying periods.
func qualifyingCount(results []models.PeriodResult) int {
	count := 0
	for _, r := range results {
		if r.Qualified {
			count++
		}
	}
	return count
}
