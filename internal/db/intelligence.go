package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceIntelligence is the outbound query payload for one
// (tenant, vendor, item) key.
type PriceIntelligence struct {
	TenantID   string `json:"tenant_id"`
	VendorID   uint   `json:"vendor_id"`
	VendorName string `json:"vendor_name"`
	ItemNumber string `json:"item_number"`
	ItemName   string `json:"item_name"`
	ItemUnit   string `json:"item_unit"`

	CanonicalItemID *uint `json:"canonical_item_id,omitempty"`

	LastPaidPrice decimal.Decimal `json:"last_paid_price"`
	LastPaidAt    *string         `json:"last_paid_at,omitempty"`

	Avg7dPrice   decimal.Decimal `json:"avg_7d_price"`
	Avg28dPrice  decimal.Decimal `json:"avg_28d_price"`
	DiffVs7dPct  decimal.Decimal `json:"diff_vs_7d_pct"`
	DiffVs28dPct decimal.Decimal `json:"diff_vs_28d_pct"`

	BestPriceAcrossVendors decimal.Decimal `json:"best_price_across_vendors"`
	BestVendorName         string          `json:"best_vendor_name"`
	DiffVsBestPct          decimal.Decimal `json:"diff_vs_best_pct"`

	Min28dPrice *decimal.Decimal `json:"min_28d_price,omitempty"`
	Max28dPrice *decimal.Decimal `json:"max_28d_price,omitempty"`
	Count28d    int64            `json:"count_28d"`
}

const businessDateLayout = "2006-01-02"

// GetPriceIntelligence assembles the query payload for one key, or returns
// nil if the key has never been ingested.
func GetPriceIntelligence(db *gorm.DB, tenantID string, vendorID uint, itemNumber string) (*PriceIntelligence, error) {
	var vi VendorItem
	err := db.
		Where("tenant_id = ? AND vendor_id = ? AND item_number = ?", tenantID, vendorID, itemNumber).
		Preload("Vendor").
		Limit(1).Find(&vi).Error
	if err != nil {
		return nil, err
	}
	if vi.ID == 0 {
		return nil, nil
	}

	var stats ItemStats
	err = db.
		Where("tenant_id = ? AND vendor_id = ? AND item_number = ?", tenantID, vendorID, itemNumber).
		Limit(1).Find(&stats).Error
	if err != nil {
		return nil, err
	}

	out := &PriceIntelligence{
		TenantID:        tenantID,
		VendorID:        vendorID,
		VendorName:      vi.Vendor.Name,
		ItemNumber:      itemNumber,
		ItemName:        vi.Name,
		ItemUnit:        vi.Unit,
		CanonicalItemID: vi.CanonicalItemID,
	}
	if stats.ID != 0 {
		out.LastPaidPrice = stats.LastPaidPrice
		if stats.LastPaidAt != nil {
			s := stats.LastPaidAt.Format(businessDateLayout)
			out.LastPaidAt = &s
		}
		out.Avg7dPrice = stats.Avg7dPrice
		out.Avg28dPrice = stats.Avg28dPrice
		out.DiffVs7dPct = stats.DiffVs7dPct
		out.DiffVs28dPct = stats.DiffVs28dPct
		out.BestPriceAcrossVendors = stats.BestPriceAcrossVendors
		out.BestVendorName = stats.BestVendorName
		out.DiffVsBestPct = stats.DiffVsBestPct
		if stats.Min28dPrice.Valid {
			d := stats.Min28dPrice.Decimal
			out.Min28dPrice = &d
		}
		if stats.Max28dPrice.Valid {
			d := stats.Max28dPrice.Decimal
			out.Max28dPrice = &d
		}
		out.Count28d = stats.Count28d
	}
	return out, nil
}

// VendorComparison is one vendor's row in a per-canonical-item comparison.
type VendorComparison struct {
	VendorID      uint            `json:"vendor_id"`
	VendorName    string          `json:"vendor_name"`
	ItemNumber    string          `json:"item_number"`
	ItemName      string          `json:"item_name"`
	LastPaidPrice decimal.Decimal `json:"last_paid_price"`
	LastPaidAt    *string         `json:"last_paid_at,omitempty"`
	DiffVsBestPct decimal.Decimal `json:"diff_vs_best_pct"`
}

// CompareVendors lists every vendor's latest price for one canonical item.
func CompareVendors(db *gorm.DB, tenantID string, canonicalID uint) ([]VendorComparison, error) {
	var items []VendorItem
	err := db.
		Where("tenant_id = ? AND canonical_item_id = ?", tenantID, canonicalID).
		Preload("Vendor").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	out := make([]VendorComparison, 0, len(items))
	for _, vi := range items {
		var stats ItemStats
		err := db.
			Where("tenant_id = ? AND vendor_id = ? AND item_number = ?", tenantID, vi.VendorID, vi.ItemNumber).
			Limit(1).Find(&stats).Error
		if err != nil {
			return nil, err
		}
		row := VendorComparison{
			VendorID:   vi.VendorID,
			VendorName: vi.Vendor.Name,
			ItemNumber: vi.ItemNumber,
			ItemName:   vi.Name,
		}
		if stats.ID != 0 {
			row.LastPaidPrice = stats.LastPaidPrice
			row.DiffVsBestPct = stats.DiffVsBestPct
			if stats.LastPaidAt != nil {
				s := stats.LastPaidAt.Format(businessDateLayout)
				row.LastPaidAt = &s
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// FindVendorByName returns the tenant's vendor with that name, or nil.
func FindVendorByName(db *gorm.DB, tenantID, name string) (*Vendor, error) {
	var v Vendor
	if err := db.Where("tenant_id = ? AND name = ?", tenantID, name).Limit(1).Find(&v).Error; err != nil {
		return nil, err
	}
	if v.ID == 0 {
		return nil, nil
	}
	return &v, nil
}

// TouchedCanonical identifies a canonical item with recent vendor-item writes.
type TouchedCanonical struct {
	TenantID        string
	CanonicalItemID uint
}

// ListTouchedCanonicals returns the distinct canonical items whose linked
// vendor items were written since the cutoff. Used by the fan-out refresh
// worker to re-run cross-vendor comparison for recently active products.
func ListTouchedCanonicals(db *gorm.DB, since time.Time) ([]TouchedCanonical, error) {
	var rows []TouchedCanonical
	err := db.Model(&VendorItem{}).
		Distinct("tenant_id", "canonical_item_id").
		Where("canonical_item_id IS NOT NULL AND updated_at >= ?", since).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
