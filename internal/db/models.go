package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vendor is a tenant-scoped supplier, created on the first invoice line that
// references a new vendor name. Immutable once items link to it except for
// the activity flag.
type Vendor struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID string `gorm:"uniqueIndex:idx_vendor_unique,priority:1;size:64;not null"`
	Name     string `gorm:"uniqueIndex:idx_vendor_unique,priority:2;size:255;not null"`

	Active bool `gorm:"default:true"`
}

// VendorItem is one vendor's view of a product. It carries the last-seen
// display name and unit and a weak reference to the cross-vendor canonical
// item. Refreshed on every ingested line for its key, never deleted.
type VendorItem struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID   string `gorm:"uniqueIndex:idx_vendor_item_unique,priority:1;size:64;not null"`
	VendorID   uint   `gorm:"uniqueIndex:idx_vendor_item_unique,priority:2;not null"`
	ItemNumber string `gorm:"uniqueIndex:idx_vendor_item_unique,priority:3;size:128;not null"`

	Name string `gorm:"size:255;not null"`
	Unit string `gorm:"size:64"`

	// CanonicalItemID links this item into a cross-vendor group. Lookup
	// only: the canonical item does not own its vendor items, and the link
	// is never removed once set.
	CanonicalItemID *uint `gorm:"index"`

	Vendor Vendor `gorm:"foreignKey:VendorID"`
}

// CanonicalItem is the cross-vendor grouping entity ("item master"). Two
// vendor items linked to the same canonical item are treated as the same
// product by price comparison.
type CanonicalItem struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID       string `gorm:"index:idx_canonical_tenant_name,priority:1;size:64;not null"`
	NormalizedName string `gorm:"index:idx_canonical_tenant_name,priority:2;size:255;not null"`

	DisplayName string `gorm:"size:255;not null"`
	Category    string `gorm:"size:64"`
	Unit        string `gorm:"size:64"`
}

// DailyRollup accumulates quantity and spend per (tenant, vendor, item,
// business date). One row per key per calendar day; multiple lines on the
// same day fold into it. Rows are never deleted: this table is the durable
// ground truth that rolling windows are recomputed from.
type DailyRollup struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID     string    `gorm:"uniqueIndex:idx_daily_rollup_unique,priority:1;size:64;not null"`
	VendorID     uint      `gorm:"uniqueIndex:idx_daily_rollup_unique,priority:2;not null"`
	ItemNumber   string    `gorm:"uniqueIndex:idx_daily_rollup_unique,priority:3;size:128;not null"`
	BusinessDate time.Time `gorm:"uniqueIndex:idx_daily_rollup_unique,priority:4;type:date;not null"`

	QuantitySum decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0"`
	SpendSum    decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0"`
}

// AvgUnitPrice returns the day's average unit price (spend / quantity),
// or zero when no quantity was recorded.
func (r DailyRollup) AvgUnitPrice() decimal.Decimal {
	if r.QuantitySum.Sign() <= 0 {
		return decimal.Zero
	}
	return r.SpendSum.DivRound(r.QuantitySum, 4)
}

// ItemStats is the derived price-intelligence row, exactly one per
// (tenant, vendor, item). LastPaidAt is a business date, not wall-clock
// time. Min/Max/Sum/Count28d are accumulated atomically at the storage
// layer and must never regress to null once populated; recomputation from
// daily rollups may refresh them but never empties them.
type ItemStats struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	TenantID   string `gorm:"uniqueIndex:idx_item_stats_unique,priority:1;size:64;not null"`
	VendorID   uint   `gorm:"uniqueIndex:idx_item_stats_unique,priority:2;not null"`
	ItemNumber string `gorm:"uniqueIndex:idx_item_stats_unique,priority:3;size:128;not null"`

	LastPaidPrice decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0"`
	LastPaidAt    *time.Time      `gorm:"type:date"`

	Avg7dPrice   decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0"`
	Avg28dPrice  decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0"`
	DiffVs7dPct  decimal.Decimal `gorm:"type:numeric(9,2);not null;default:0"`
	DiffVs28dPct decimal.Decimal `gorm:"type:numeric(9,2);not null;default:0"`

	BestPriceAcrossVendors decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0"`
	BestVendorName         string          `gorm:"size:255"`
	DiffVsBestPct          decimal.Decimal `gorm:"type:numeric(9,2);not null;default:0"`

	Min28dPrice decimal.NullDecimal `gorm:"type:numeric(14,4)"`
	Max28dPrice decimal.NullDecimal `gorm:"type:numeric(14,4)"`
	Sum28dPrice decimal.Decimal     `gorm:"type:numeric(16,4);not null;default:0"`
	Count28d    int64               `gorm:"not null;default:0"`
}

// ItemStatsPatch is a partial update of ItemStats. Only non-nil fields are
// written; the stats row is created first if absent.
type ItemStatsPatch struct {
	Avg7dPrice   *decimal.Decimal
	Avg28dPrice  *decimal.Decimal
	DiffVs7dPct  *decimal.Decimal
	DiffVs28dPct *decimal.Decimal

	Min28dPrice *decimal.Decimal
	Max28dPrice *decimal.Decimal

	BestPriceAcrossVendors *decimal.Decimal
	BestVendorName         *string
	DiffVsBestPct          *decimal.Decimal
}

// APIKey is a bearer credential for the ingest and query endpoints. The
// token itself is stored only as a bcrypt hash. A key with a TenantID is
// scoped to that tenant; an empty TenantID means the key may ingest for
// any tenant named in the payload.
type APIKey struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Name     string `gorm:"size:128;not null"`
	TenantID string `gorm:"size:64"`

	KeyHash string `gorm:"size:255;not null"`

	Active bool `gorm:"default:true"`
}
