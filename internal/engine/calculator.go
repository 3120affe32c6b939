package engine

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	dbpkg "priceintel/internal/db"
)

// Calculator recomputes rolling-window statistics from the daily rollups.
type Calculator struct {
	rollups RollupStore
	stats   StatsStore
	log     *logrus.Logger
}

func NewCalculator(rollups RollupStore, stats StatsStore, log *logrus.Logger) *Calculator {
	return &Calculator{rollups: rollups, stats: stats, log: log}
}

// RecomputeRolling refreshes the 7/28-day weighted averages, variance
// percentages and 28-day min/max for the key, over inclusive windows ending
// at asOf.
//
// If the window queries return no rows (daily data not yet visible, e.g.
// write ordering) or anything errors, the atomic accumulators are never
// overwritten with emptier data: min/max are seeded only when currently null,
// from avg28d or last paid price, and otherwise left alone. Errors are not
// returned to the ingestion path; the next ingest for the key self-heals.
func (c *Calculator) RecomputeRolling(key ItemKey, asOf time.Time) {
	start7 := asOf.AddDate(0, 0, -6)
	start28 := asOf.AddDate(0, 0, -27)

	rows7, err7 := c.rollups.GetWindow(key.TenantID, key.VendorID, key.ItemNumber, start7, asOf)
	rows28, err28 := c.rollups.GetWindow(key.TenantID, key.VendorID, key.ItemNumber, start28, asOf)
	if err7 != nil || err28 != nil || len(rows28) == 0 {
		err := err7
		if err == nil {
			err = err28
		}
		c.fallback(key, err)
		return
	}

	avg7 := weightedAverage(rows7)
	avg28 := weightedAverage(rows28)
	min28, max28 := dailyPriceRange(rows28)

	current, err := c.stats.Get(key.TenantID, key.VendorID, key.ItemNumber)
	if err != nil {
		c.fallback(key, err)
		return
	}

	patch := dbpkg.ItemStatsPatch{
		Avg7dPrice:  &avg7,
		Avg28dPrice: &avg28,
		Min28dPrice: min28,
		Max28dPrice: max28,
	}
	if current != nil {
		d7 := pctDiff(current.LastPaidPrice, avg7)
		d28 := pctDiff(current.LastPaidPrice, avg28)
		patch.DiffVs7dPct = &d7
		patch.DiffVs28dPct = &d28
	}

	if err := c.stats.Upsert(key.TenantID, key.VendorID, key.ItemNumber, patch); err != nil {
		c.logKey(key).WithError(err).Warn("rolling stats upsert failed")
	}
}

// fallback seeds null min/max from whatever price signal exists, and leaves
// already populated accumulators untouched.
func (c *Calculator) fallback(key ItemKey, cause error) {
	recomputeFallbacks.WithLabelValues(key.TenantID).Inc()
	entry := c.logKey(key)
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Info("rolling recompute fallback")

	current, err := c.stats.Get(key.TenantID, key.VendorID, key.ItemNumber)
	if err != nil || current == nil {
		return
	}
	if current.Min28dPrice.Valid && current.Max28dPrice.Valid {
		return
	}

	var seed decimal.Decimal
	switch {
	case current.Avg28dPrice.Sign() > 0:
		seed = current.Avg28dPrice
	case current.LastPaidPrice.Sign() > 0:
		seed = current.LastPaidPrice
	default:
		return
	}

	if err := c.stats.Upsert(key.TenantID, key.VendorID, key.ItemNumber, dbpkg.ItemStatsPatch{
		Min28dPrice: &seed,
		Max28dPrice: &seed,
	}); err != nil {
		c.logKey(key).WithError(err).Warn("fallback seed upsert failed")
	}
}

func (c *Calculator) logKey(key ItemKey) *logrus.Entry {
	return c.log.WithFields(logrus.Fields{
		"tenant": key.TenantID,
		"vendor": key.VendorID,
		"item":   key.ItemNumber,
	})
}

// weightedAverage is total spend over total quantity for the window, zero
// when no quantity was recorded.
func weightedAverage(rows []dbpkg.DailyRollup) decimal.Decimal {
	var qty, spend decimal.Decimal
	for _, r := range rows {
		qty = qty.Add(r.QuantitySum)
		spend = spend.Add(r.SpendSum)
	}
	if qty.Sign() <= 0 {
		return decimal.Zero
	}
	return spend.DivRound(qty, 4)
}

// dailyPriceRange returns the min and max of each day's average unit price
// (spend/quantity per day). Days without quantity or with only zero-priced
// activity are skipped so they cannot drag the range to zero.
func dailyPriceRange(rows []dbpkg.DailyRollup) (min, max *decimal.Decimal) {
	for _, r := range rows {
		if r.QuantitySum.Sign() <= 0 {
			continue
		}
		p := r.AvgUnitPrice()
		if p.Sign() <= 0 {
			continue
		}
		if min == nil || p.LessThan(*min) {
			v := p
			min = &v
		}
		if max == nil || p.GreaterThan(*max) {
			v := p
			max = &v
		}
	}
	return min, max
}
