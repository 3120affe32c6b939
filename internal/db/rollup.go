package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RollupStore persists daily quantity/spend accumulators.
type RollupStore struct {
	db *gorm.DB
}

func NewRollupStore(db *gorm.DB) *RollupStore {
	return &RollupStore{db: db}
}

// AddRollup additively upserts the day's row: created with the given values
// if absent, otherwise quantity_sum and spend_sum are incremented. The whole
// operation is a single conditional statement, so concurrent same-key writers
// never lose an increment.
func (s *RollupStore) AddRollup(tenantID string, vendorID uint, itemNumber string, businessDate time.Time, quantity, spend decimal.Decimal) error {
	row := DailyRollup{
		TenantID:     tenantID,
		VendorID:     vendorID,
		ItemNumber:   itemNumber,
		BusinessDate: businessDate,
		QuantitySum:  quantity,
		SpendSum:     spend,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "vendor_id"}, {Name: "item_number"}, {Name: "business_date"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity_sum": gorm.Expr("daily_rollups.quantity_sum + EXCLUDED.quantity_sum"),
			"spend_sum":    gorm.Expr("daily_rollups.spend_sum + EXCLUDED.spend_sum"),
			"updated_at":   gorm.Expr("NOW()"),
		}),
	}).Create(&row).Error
}

// GetWindow returns the daily rows for [start, end] inclusive, ordered by
// business date.
func (s *RollupStore) GetWindow(tenantID string, vendorID uint, itemNumber string, start, end time.Time) ([]DailyRollup, error) {
	var rows []DailyRollup
	err := s.db.
		Where("tenant_id = ? AND vendor_id = ? AND item_number = ?", tenantID, vendorID, itemNumber).
		Where("business_date >= ? AND business_date <= ?", start, end).
		Order("business_date").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
