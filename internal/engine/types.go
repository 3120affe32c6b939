package engine

import (
	"time"

	"github.com/shopspring/decimal"

	dbpkg "priceintel/internal/db"
)

// Line is one normalized invoice line item as produced by the import layer.
// BusinessDate is the ISO calendar date the line is attributed to, not the
// time it arrived here.
type Line struct {
	TenantID     string          `json:"tenant_id" validate:"required,max=64"`
	Vendor       string          `json:"vendor" validate:"required,max=255"`
	ItemNumber   string          `json:"item_number" validate:"required,max=128"`
	Name         string          `json:"name" validate:"required,max=255"`
	Unit         string          `json:"unit" validate:"max=64"`
	CategoryHint string          `json:"category_hint,omitempty" validate:"max=64"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	BusinessDate string          `json:"business_date" validate:"required,datetime=2006-01-02"`
}

// LineStatus classifies the outcome of one ingested line.
type LineStatus string

const (
	StatusOK              LineStatus = "ok"
	StatusValidationError LineStatus = "validation_error"
	StatusMatchingError   LineStatus = "matching_error"
	StatusStorageError    LineStatus = "storage_error"
)

// Outcome reports what happened to one line. Business failures are values,
// not errors: a rejected line never aborts the batch it arrived in.
type Outcome struct {
	Index           int        `json:"index"`
	Status          LineStatus `json:"status"`
	Error           string     `json:"error,omitempty"`
	CanonicalItemID uint       `json:"canonical_item_id,omitempty"`

	key    ItemKey
	hasKey bool
}

// OK reports whether the line was fully ingested.
func (o Outcome) OK() bool { return o.Status == StatusOK }

// Key returns the resolved (tenant, vendor, item) key for a successful line.
func (o Outcome) Key() (ItemKey, bool) { return o.key, o.hasKey }

// BatchResult aggregates per-line outcomes of RecordBatch.
type BatchResult struct {
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
	Results  []Outcome `json:"results"`
}

// ItemKey identifies one vendor's product within a tenant.
type ItemKey struct {
	TenantID   string
	VendorID   uint
	ItemNumber string
}

// CatalogStore is the vendor/item/canonical-item persistence the engine needs.
type CatalogStore interface {
	EnsureVendor(tenantID, name string) (*dbpkg.Vendor, error)
	UpsertVendorItem(tenantID string, vendorID uint, itemNumber, name, unit string, canonicalID uint) error
	FindCanonicalByNormalizedName(tenantID, normalized string) (*dbpkg.CanonicalItem, error)
	ListCanonicalItems(tenantID string) ([]dbpkg.CanonicalItem, error)
	CreateCanonicalItem(ci *dbpkg.CanonicalItem) error
	ListLinkedVendorItems(tenantID string, canonicalID uint) ([]dbpkg.VendorItem, error)
}

// RollupStore is the daily quantity/spend accumulator persistence.
type RollupStore interface {
	AddRollup(tenantID string, vendorID uint, itemNumber string, businessDate time.Time, quantity, spend decimal.Decimal) error
	GetWindow(tenantID string, vendorID uint, itemNumber string, start, end time.Time) ([]dbpkg.DailyRollup, error)
}

// StatsStore is the per-key price intelligence row persistence. Increment28d
// and SetLastPaid must be storage-level atomic for a given key under
// concurrent callers.
type StatsStore interface {
	Increment28d(tenantID string, vendorID uint, itemNumber string, unitPrice decimal.Decimal) error
	SetLastPaid(tenantID string, vendorID uint, itemNumber string, unitPrice decimal.Decimal, businessDate time.Time) error
	Upsert(tenantID string, vendorID uint, itemNumber string, patch dbpkg.ItemStatsPatch) error
	Get(tenantID string, vendorID uint, itemNumber string) (*dbpkg.ItemStats, error)
}

const businessDateLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

// pctDiff returns (value - base) / base * 100 rounded to 2 places, or zero
// when base is not positive.
func pctDiff(value, base decimal.Decimal) decimal.Decimal {
	if base.Sign() <= 0 {
		return decimal.Zero
	}
	return value.Sub(base).Div(base).Mul(hundred).Round(2)
}
