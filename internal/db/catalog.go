package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogStore persists vendors, vendor items and canonical items.
type CatalogStore struct {
	db *gorm.DB
}

func NewCatalogStore(db *gorm.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// EnsureVendor returns the tenant's vendor with the given name, creating it
// on first reference.
func (s *CatalogStore) EnsureVendor(tenantID, name string) (*Vendor, error) {
	var v Vendor
	err := s.db.Where("tenant_id = ? AND name = ?", tenantID, name).Limit(1).Find(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID != 0 {
		return &v, nil
	}

	v = Vendor{TenantID: tenantID, Name: name, Active: true}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "name"}},
		DoNothing: true,
	}).Create(&v).Error; err != nil {
		return nil, err
	}
	if v.ID != 0 {
		return &v, nil
	}
	// Lost the create race; fetch the winner.
	if err := s.db.Where("tenant_id = ? AND name = ?", tenantID, name).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVendorItem returns the vendor item for the key, or nil if unknown.
func (s *CatalogStore) GetVendorItem(tenantID string, vendorID uint, itemNumber string) (*VendorItem, error) {
	var vi VendorItem
	err := s.db.
		Where("tenant_id = ? AND vendor_id = ? AND item_number = ?", tenantID, vendorID, itemNumber).
		Limit(1).Find(&vi).Error
	if err != nil {
		return nil, err
	}
	if vi.ID == 0 {
		return nil, nil
	}
	return &vi, nil
}

// UpsertVendorItem refreshes the last-seen name/unit for the key and links
// the canonical item. An existing canonical link is never replaced.
func (s *CatalogStore) UpsertVendorItem(tenantID string, vendorID uint, itemNumber, name, unit string, canonicalID uint) error {
	vi := VendorItem{
		TenantID:        tenantID,
		VendorID:        vendorID,
		ItemNumber:      itemNumber,
		Name:            name,
		Unit:            unit,
		CanonicalItemID: &canonicalID,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "vendor_id"}, {Name: "item_number"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"name":              name,
			"unit":              unit,
			"canonical_item_id": gorm.Expr("COALESCE(vendor_items.canonical_item_id, EXCLUDED.canonical_item_id)"),
			"updated_at":        gorm.Expr("NOW()"),
		}),
	}).Create(&vi).Error
}

// FindCanonicalByNormalizedName exact-matches a canonical item within the
// tenant, returning nil if none exists.
func (s *CatalogStore) FindCanonicalByNormalizedName(tenantID, normalized string) (*CanonicalItem, error) {
	var ci CanonicalItem
	err := s.db.Where("tenant_id = ? AND normalized_name = ?", tenantID, normalized).Limit(1).Find(&ci).Error
	if err != nil {
		return nil, err
	}
	if ci.ID == 0 {
		return nil, nil
	}
	return &ci, nil
}

// ListCanonicalItems returns all canonical items for the tenant, the fuzzy
// matcher's candidate pool.
func (s *CatalogStore) ListCanonicalItems(tenantID string) ([]CanonicalItem, error) {
	var items []CanonicalItem
	if err := s.db.Where("tenant_id = ?", tenantID).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// CreateCanonicalItem inserts a new canonical item and fills in its ID.
func (s *CatalogStore) CreateCanonicalItem(ci *CanonicalItem) error {
	return s.db.Create(ci).Error
}

// ListLinkedVendorItems returns every vendor item linked to the canonical
// item, with the owning vendor preloaded for name lookups.
func (s *CatalogStore) ListLinkedVendorItems(tenantID string, canonicalID uint) ([]VendorItem, error) {
	var items []VendorItem
	err := s.db.
		Where("tenant_id = ? AND canonical_item_id = ?", tenantID, canonicalID).
		Preload("Vendor").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
