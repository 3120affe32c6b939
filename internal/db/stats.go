package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatsStore persists the per-(tenant, vendor, item) price intelligence row.
type StatsStore struct {
	db *gorm.DB
}

func NewStatsStore(db *gorm.DB) *StatsStore {
	return &StatsStore{db: db}
}

// Increment28d folds one unit price into the 28-day accumulators as a single
// conditional statement. N concurrent increments for the same key must yield
// count28d == N, so this is never done as an application-side read-modify-write.
func (s *StatsStore) Increment28d(tenantID string, vendorID uint, itemNumber string, unitPrice decimal.Decimal) error {
	return s.db.Exec(`
		INSERT INTO item_stats
			(tenant_id, vendor_id, item_number, sum28d_price, count28d, min28d_price, max28d_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, NOW(), NOW())
		ON CONFLICT (tenant_id, vendor_id, item_number) DO UPDATE SET
			sum28d_price = item_stats.sum28d_price + EXCLUDED.sum28d_price,
			count28d     = item_stats.count28d + 1,
			min28d_price = LEAST(COALESCE(item_stats.min28d_price, EXCLUDED.min28d_price), EXCLUDED.min28d_price),
			max28d_price = GREATEST(COALESCE(item_stats.max28d_price, EXCLUDED.max28d_price), EXCLUDED.max28d_price),
			updated_at   = NOW()`,
		tenantID, vendorID, itemNumber, unitPrice, unitPrice, unitPrice,
	).Error
}

// SetLastPaid records a paid price for a business date, but only when the
// stored last-paid date is absent or strictly older. Replaying an old invoice
// after a newer one therefore never regresses last_paid_price.
func (s *StatsStore) SetLastPaid(tenantID string, vendorID uint, itemNumber string, unitPrice decimal.Decimal, businessDate time.Time) error {
	return s.db.Exec(`
		INSERT INTO item_stats
			(tenant_id, vendor_id, item_number, last_paid_price, last_paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NOW(), NOW())
		ON CONFLICT (tenant_id, vendor_id, item_number) DO UPDATE SET
			last_paid_price = EXCLUDED.last_paid_price,
			last_paid_at    = EXCLUDED.last_paid_at,
			updated_at      = NOW()
		WHERE item_stats.last_paid_at IS NULL OR item_stats.last_paid_at < EXCLUDED.last_paid_at`,
		tenantID, vendorID, itemNumber, unitPrice, businessDate,
	).Error
}

// Upsert merges the non-nil fields of the patch into the stats row, creating
// it first if absent.
func (s *StatsStore) Upsert(tenantID string, vendorID uint, itemNumber string, patch ItemStatsPatch) error {
	updates := map[string]interface{}{}
	if patch.Avg7dPrice != nil {
		updates["avg7d_price"] = *patch.Avg7dPrice
	}
	if patch.Avg28dPrice != nil {
		updates["avg28d_price"] = *patch.Avg28dPrice
	}
	if patch.DiffVs7dPct != nil {
		updates["diff_vs7d_pct"] = *patch.DiffVs7dPct
	}
	if patch.DiffVs28dPct != nil {
		updates["diff_vs28d_pct"] = *patch.DiffVs28dPct
	}
	if patch.Min28dPrice != nil {
		updates["min28d_price"] = *patch.Min28dPrice
	}
	if patch.Max28dPrice != nil {
		updates["max28d_price"] = *patch.Max28dPrice
	}
	if patch.BestPriceAcrossVendors != nil {
		updates["best_price_across_vendors"] = *patch.BestPriceAcrossVendors
	}
	if patch.BestVendorName != nil {
		updates["best_vendor_name"] = *patch.BestVendorName
	}
	if patch.DiffVsBestPct != nil {
		updates["diff_vs_best_pct"] = *patch.DiffVsBestPct
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.Model(&ItemStats{}).
		Where("tenant_id = ? AND vendor_id = ? AND item_number = ?", tenantID, vendorID, itemNumber).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	row := ItemStats{TenantID: tenantID, VendorID: vendorID, ItemNumber: itemNumber}
	applyPatch(&row, patch)
	if err := s.db.Create(&row).Error; err != nil {
		// Most likely a lost create race on the unique key; the row exists
		// now, so fall back to the update.
		return s.db.Model(&ItemStats{}).
			Where("tenant_id = ? AND vendor_id = ? AND item_number = ?", tenantID, vendorID, itemNumber).
			Updates(updates).Error
	}
	return nil
}

func applyPatch(row *ItemStats, patch ItemStatsPatch) {
	if patch.Avg7dPrice != nil {
		row.Avg7dPrice = *patch.Avg7dPrice
	}
	if patch.Avg28dPrice != nil {
		row.Avg28dPrice = *patch.Avg28dPrice
	}
	if patch.DiffVs7dPct != nil {
		row.DiffVs7dPct = *patch.DiffVs7dPct
	}
	if patch.DiffVs28dPct != nil {
		row.DiffVs28dPct = *patch.DiffVs28dPct
	}
	if patch.Min28dPrice != nil {
		row.Min28dPrice = decimal.NewNullDecimal(*patch.Min28dPrice)
	}
	if patch.Max28dPrice != nil {
		row.Max28dPrice = decimal.NewNullDecimal(*patch.Max28dPrice)
	}
	if patch.BestPriceAcrossVendors != nil {
		row.BestPriceAcrossVendors = *patch.BestPriceAcrossVendors
	}
	if patch.BestVendorName != nil {
		row.BestVendorName = *patch.BestVendorName
	}
	if patch.DiffVsBestPct != nil {
		row.DiffVsBestPct = *patch.DiffVsBestPct
	}
}

// Get returns the stats row for the key, or nil if it was never ingested.
func (s *StatsStore) Get(tenantID string, vendorID uint, itemNumber string) (*ItemStats, error) {
	var row ItemStats
	err := s.db.
		Where("tenant_id = ? AND vendor_id = ? AND item_number = ?", tenantID, vendorID, itemNumber).
		Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}
