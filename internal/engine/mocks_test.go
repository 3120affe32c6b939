package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	dbpkg "priceintel/internal/db"
)

// In-memory store fakes. The stats mock performs Increment28d and SetLastPaid
// under its mutex as single conditional operations, mirroring the storage
// guarantees the real stores provide with conditional SQL.

type mockCatalog struct {
	mu sync.Mutex

	nextVendorID    uint
	nextCanonicalID uint

	vendors     map[string]*dbpkg.Vendor // tenant + "\x00" + name
	canonical   []dbpkg.CanonicalItem
	vendorItems map[ItemKey]*dbpkg.VendorItem

	failCreateCanonical error
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		vendors:     make(map[string]*dbpkg.Vendor),
		vendorItems: make(map[ItemKey]*dbpkg.VendorItem),
	}
}

func (m *mockCatalog) EnsureVendor(tenantID, name string) (*dbpkg.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tenantID + "\x00" + name
	if v, ok := m.vendors[k]; ok {
		copied := *v
		return &copied, nil
	}
	m.nextVendorID++
	v := &dbpkg.Vendor{ID: m.nextVendorID, TenantID: tenantID, Name: name, Active: true}
	m.vendors[k] = v
	copied := *v
	return &copied, nil
}

func (m *mockCatalog) vendorByID(id uint) *dbpkg.Vendor {
	for _, v := range m.vendors {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func (m *mockCatalog) UpsertVendorItem(tenantID string, vendorID uint, itemNumber, name, unit string, canonicalID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ItemKey{TenantID: tenantID, VendorID: vendorID, ItemNumber: itemNumber}
	if vi, ok := m.vendorItems[key]; ok {
		vi.Name = name
		vi.Unit = unit
		if vi.CanonicalItemID == nil {
			vi.CanonicalItemID = &canonicalID
		}
		return nil
	}
	m.vendorItems[key] = &dbpkg.VendorItem{
		TenantID:        tenantID,
		VendorID:        vendorID,
		ItemNumber:      itemNumber,
		Name:            name,
		Unit:            unit,
		CanonicalItemID: &canonicalID,
	}
	return nil
}

func (m *mockCatalog) FindCanonicalByNormalizedName(tenantID, normalized string) (*dbpkg.CanonicalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.canonical {
		if m.canonical[i].TenantID == tenantID && m.canonical[i].NormalizedName == normalized {
			copied := m.canonical[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockCatalog) ListCanonicalItems(tenantID string) ([]dbpkg.CanonicalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dbpkg.CanonicalItem
	for _, c := range m.canonical {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCatalog) CreateCanonicalItem(ci *dbpkg.CanonicalItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateCanonical != nil {
		return m.failCreateCanonical
	}
	m.nextCanonicalID++
	ci.ID = m.nextCanonicalID
	m.canonical = append(m.canonical, *ci)
	return nil
}

func (m *mockCatalog) ListLinkedVendorItems(tenantID string, canonicalID uint) ([]dbpkg.VendorItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dbpkg.VendorItem
	for _, vi := range m.vendorItems {
		if vi.TenantID != tenantID || vi.CanonicalItemID == nil || *vi.CanonicalItemID != canonicalID {
			continue
		}
		copied := *vi
		if v := m.vendorByID(vi.VendorID); v != nil {
			copied.Vendor = *v
		}
		out = append(out, copied)
	}
	return out, nil
}

type rollupKey struct {
	ItemKey
	date string
}

type mockRollups struct {
	mu   sync.Mutex
	rows map[rollupKey]*dbpkg.DailyRollup

	failGetWindow error
	failAdd       error
}

func newMockRollups() *mockRollups {
	return &mockRollups{rows: make(map[rollupKey]*dbpkg.DailyRollup)}
}

func (m *mockRollups) AddRollup(tenantID string, vendorID uint, itemNumber string, businessDate time.Time, quantity, spend decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd != nil {
		return m.failAdd
	}
	k := rollupKey{
		ItemKey: ItemKey{TenantID: tenantID, VendorID: vendorID, ItemNumber: itemNumber},
		date:    businessDate.Format("2006-01-02"),
	}
	if row, ok := m.rows[k]; ok {
		row.QuantitySum = row.QuantitySum.Add(quantity)
		row.SpendSum = row.SpendSum.Add(spend)
		return nil
	}
	m.rows[k] = &dbpkg.DailyRollup{
		TenantID:     tenantID,
		VendorID:     vendorID,
		ItemNumber:   itemNumber,
		BusinessDate: businessDate,
		QuantitySum:  quantity,
		SpendSum:     spend,
	}
	return nil
}

func (m *mockRollups) GetWindow(tenantID string, vendorID uint, itemNumber string, start, end time.Time) ([]dbpkg.DailyRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGetWindow != nil {
		return nil, m.failGetWindow
	}
	var out []dbpkg.DailyRollup
	for _, row := range m.rows {
		if row.TenantID != tenantID || row.VendorID != vendorID || row.ItemNumber != itemNumber {
			continue
		}
		if row.BusinessDate.Before(start) || row.BusinessDate.After(end) {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

type mockStats struct {
	mu   sync.Mutex
	rows map[ItemKey]*dbpkg.ItemStats

	failIncrement error
	failUpsert    error
	failUpsertFor map[ItemKey]error
}

func newMockStats() *mockStats {
	return &mockStats{rows: make(map[ItemKey]*dbpkg.ItemStats)}
}

func (m *mockStats) row(key ItemKey) *dbpkg.ItemStats {
	if r, ok := m.rows[key]; ok {
		return r
	}
	r := &dbpkg.ItemStats{TenantID: key.TenantID, VendorID: key.VendorID, ItemNumber: key.ItemNumber}
	m.rows[key] = r
	return r
}

func (m *mockStats) Increment28d(tenantID string, vendorID uint, itemNumber string, unitPrice decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIncrement != nil {
		return m.failIncrement
	}
	r := m.row(ItemKey{TenantID: tenantID, VendorID: vendorID, ItemNumber: itemNumber})
	r.Sum28dPrice = r.Sum28dPrice.Add(unitPrice)
	r.Count28d++
	if !r.Min28dPrice.Valid || unitPrice.LessThan(r.Min28dPrice.Decimal) {
		r.Min28dPrice = decimal.NewNullDecimal(unitPrice)
	}
	if !r.Max28dPrice.Valid || unitPrice.GreaterThan(r.Max28dPrice.Decimal) {
		r.Max28dPrice = decimal.NewNullDecimal(unitPrice)
	}
	return nil
}

func (m *mockStats) SetLastPaid(tenantID string, vendorID uint, itemNumber string, unitPrice decimal.Decimal, businessDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.row(ItemKey{TenantID: tenantID, VendorID: vendorID, ItemNumber: itemNumber})
	if r.LastPaidAt == nil || r.LastPaidAt.Before(businessDate) {
		r.LastPaidPrice = unitPrice
		d := businessDate
		r.LastPaidAt = &d
	}
	return nil
}

func (m *mockStats) Upsert(tenantID string, vendorID uint, itemNumber string, patch dbpkg.ItemStatsPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return m.failUpsert
	}
	if err, ok := m.failUpsertFor[ItemKey{TenantID: tenantID, VendorID: vendorID, ItemNumber: itemNumber}]; ok {
		return err
	}
	r := m.row(ItemKey{TenantID: tenantID, VendorID: vendorID, ItemNumber: itemNumber})
	if patch.Avg7dPrice != nil {
		r.Avg7dPrice = *patch.Avg7dPrice
	}
	if patch.Avg28dPrice != nil {
		r.Avg28dPrice = *patch.Avg28dPrice
	}
	if patch.DiffVs7dPct != nil {
		r.DiffVs7dPct = *patch.DiffVs7dPct
	}
	if patch.DiffVs28dPct != nil {
		r.DiffVs28dPct = *patch.DiffVs28dPct
	}
	if patch.Min28dPrice != nil {
		r.Min28dPrice = decimal.NewNullDecimal(*patch.Min28dPrice)
	}
	if patch.Max28dPrice != nil {
		r.Max28dPrice = decimal.NewNullDecimal(*patch.Max28dPrice)
	}
	if patch.BestPriceAcrossVendors != nil {
		r.BestPriceAcrossVendors = *patch.BestPriceAcrossVendors
	}
	if patch.BestVendorName != nil {
		r.BestVendorName = *patch.BestVendorName
	}
	if patch.DiffVsBestPct != nil {
		r.DiffVsBestPct = *patch.DiffVsBestPct
	}
	return nil
}

func (m *mockStats) Get(tenantID string, vendorID uint, itemNumber string) (*dbpkg.ItemStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[ItemKey{TenantID: tenantID, VendorID: vendorID, ItemNumber: itemNumber}]
	if !ok {
		return nil, nil
	}
	copied := *r
	if r.LastPaidAt != nil {
		d := *r.LastPaidAt
		copied.LastPaidAt = &d
	}
	return &copied, nil
}

// mustGet fails loudly when a test expects a stats row that is missing.
func (m *mockStats) mustGet(key ItemKey) *dbpkg.ItemStats {
	r, err := m.Get(key.TenantID, key.VendorID, key.ItemNumber)
	if err != nil {
		panic(err)
	}
	if r == nil {
		panic(fmt.Sprintf("no stats row for %+v", key))
	}
	return r
}
