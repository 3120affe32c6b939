package engine

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	dbpkg "priceintel/internal/db"
)

// Engine is the ingestion orchestrator: the single entry point that sequences
// item resolution, rollup accumulation, stats maintenance and cross-vendor
// fan-out per incoming invoice line.
type Engine struct {
	catalog CatalogStore
	rollups RollupStore
	stats   StatsStore

	matcher *Matcher
	calc    *Calculator

	validate *validator.Validate
	log      *logrus.Logger
}

func New(catalog CatalogStore, rollups RollupStore, stats StatsStore, matcherCfg MatcherConfig, log *logrus.Logger) *Engine {
	return &Engine{
		catalog:  catalog,
		rollups:  rollups,
		stats:    stats,
		matcher:  NewMatcher(catalog, matcherCfg, log),
		calc:     NewCalculator(rollups, stats, log),
		validate: validator.New(),
		log:      log,
	}
}

// Matcher exposes the engine's item matcher, mainly for query surfaces that
// need unit/category normalization.
func (e *Engine) Matcher() *Matcher { return e.matcher }

// RecordLine ingests one invoice line. Validation and matching failures are
// reported in the outcome and mutate nothing (validation) or nothing beyond
// the canonical catalog (matching). Statistical-layer faults degrade
// gracefully: the accumulator is best-effort once the daily rollup (ground
// truth) has been written, and recompute/fan-out failures never fail the line.
func (e *Engine) RecordLine(line Line, recompute bool) Outcome {
	out := e.recordLineDeferred(line)
	if !out.OK() {
		return out
	}
	key, _ := out.Key()

	if recompute {
		asOf, _ := time.Parse(businessDateLayout, line.BusinessDate)
		e.calc.RecomputeRolling(key, asOf)
	}

	if err := e.FanOutCanonical(key.TenantID, out.CanonicalItemID); err != nil {
		e.logKey(key).WithError(err).Warn("cross-vendor fanout failed")
	}

	e.logKey(key).WithField("canonical", out.CanonicalItemID).Debug("line ingested")
	return out
}

// RecordBatch ingests lines sequentially without aborting on per-line
// failures. Per-line recompute and fan-out are deferred: after all lines are
// written, each distinct key is recomputed once at the latest business date
// seen for it and each distinct canonical item is fanned out once.
func (e *Engine) RecordBatch(lines []Line, recompute bool) BatchResult {
	result := BatchResult{Results: make([]Outcome, 0, len(lines))}

	type pending struct {
		key  ItemKey
		asOf time.Time
	}
	latest := make(map[ItemKey]pending)
	canonicals := make(map[string]map[uint]struct{})

	for i, line := range lines {
		out := e.recordLineDeferred(line)
		out.Index = i
		if out.OK() {
			result.Accepted++
			key, _ := out.Key()
			asOf, _ := time.Parse(businessDateLayout, line.BusinessDate)
			if p, ok := latest[key]; !ok || asOf.After(p.asOf) {
				latest[key] = pending{key: key, asOf: asOf}
			}
			if canonicals[key.TenantID] == nil {
				canonicals[key.TenantID] = make(map[uint]struct{})
			}
			canonicals[key.TenantID][out.CanonicalItemID] = struct{}{}
		} else {
			result.Rejected++
		}
		result.Results = append(result.Results, out)
	}

	if recompute {
		for _, p := range latest {
			e.calc.RecomputeRolling(p.key, p.asOf)
		}
	}
	for tenant, ids := range canonicals {
		for id := range ids {
			if err := e.FanOutCanonical(tenant, id); err != nil {
				e.log.WithFields(logrus.Fields{"tenant": tenant, "canonical": id}).
					WithError(err).Warn("cross-vendor fanout failed")
			}
		}
	}

	return result
}

// recordLineDeferred is RecordLine minus the per-line recompute and fan-out,
// which RecordBatch runs once per distinct key afterwards.
func (e *Engine) recordLineDeferred(line Line) Outcome {
	outcome, businessDate := e.validateLine(line)
	if outcome != nil {
		return *outcome
	}

	vendor, err := e.catalog.EnsureVendor(line.TenantID, line.Vendor)
	if err != nil {
		return e.reject(line, StatusStorageError, fmt.Errorf("ensure vendor: %w", err))
	}
	key := ItemKey{TenantID: line.TenantID, VendorID: vendor.ID, ItemNumber: line.ItemNumber}

	canonicalID, err := e.matcher.Resolve(line.TenantID, line.Name, line.Unit, line.CategoryHint)
	if err != nil {
		return e.reject(line, StatusMatchingError, err)
	}

	if err := e.catalog.UpsertVendorItem(key.TenantID, key.VendorID, key.ItemNumber, line.Name, line.Unit, canonicalID); err != nil {
		return e.reject(line, StatusStorageError, fmt.Errorf("upsert vendor item: %w", err))
	}

	spend := line.UnitPrice.Mul(line.Quantity)
	if err := e.rollups.AddRollup(key.TenantID, key.VendorID, key.ItemNumber, businessDate, line.Quantity, spend); err != nil {
		return e.reject(line, StatusStorageError, fmt.Errorf("add rollup: %w", err))
	}

	// From here on the ground truth is written; remaining steps are
	// best-effort and self-heal on the next line for this key.
	if line.UnitPrice.Sign() > 0 {
		if err := e.stats.Increment28d(key.TenantID, key.VendorID, key.ItemNumber, line.UnitPrice); err != nil {
			accumulatorFailures.Inc()
			e.logKey(key).WithError(err).Warn("28d accumulator increment failed")
		}
	}

	if err := e.stats.SetLastPaid(key.TenantID, key.VendorID, key.ItemNumber, line.UnitPrice, businessDate); err != nil {
		e.logKey(key).WithError(err).Warn("last paid update failed")
	}

	linesIngested.WithLabelValues(line.TenantID).Inc()
	return Outcome{Status: StatusOK, CanonicalItemID: canonicalID, key: key, hasKey: true}
}

// validateLine checks the line before any mutation. A non-nil outcome means
// rejection; otherwise the parsed business date is returned.
func (e *Engine) validateLine(line Line) (*Outcome, time.Time) {
	if err := e.validate.Struct(line); err != nil {
		out := e.reject(line, StatusValidationError, err)
		return &out, time.Time{}
	}
	if line.Quantity.Sign() <= 0 {
		out := e.reject(line, StatusValidationError, fmt.Errorf("quantity must be positive, got %s", line.Quantity))
		return &out, time.Time{}
	}
	if line.UnitPrice.Sign() < 0 {
		out := e.reject(line, StatusValidationError, fmt.Errorf("unit price must not be negative, got %s", line.UnitPrice))
		return &out, time.Time{}
	}
	businessDate, err := time.Parse(businessDateLayout, line.BusinessDate)
	if err != nil {
		out := e.reject(line, StatusValidationError, fmt.Errorf("invalid business date %q", line.BusinessDate))
		return &out, time.Time{}
	}
	return nil, businessDate
}

func (e *Engine) reject(line Line, status LineStatus, err error) Outcome {
	linesRejected.WithLabelValues(line.TenantID, string(status)).Inc()
	e.log.WithFields(logrus.Fields{
		"tenant": line.TenantID,
		"vendor": line.Vendor,
		"item":   line.ItemNumber,
		"status": status,
	}).WithError(err).Info("line rejected")
	return Outcome{Status: status, Error: err.Error()}
}

// FanOutCanonical recomputes the cross-vendor best price for one canonical
// item and propagates it to every linked vendor item with a valid paid price.
// The linked set is loaded once; rows are then updated independently, so one
// failed row never rolls back or blocks its siblings.
func (e *Engine) FanOutCanonical(tenantID string, canonicalID uint) error {
	linked, err := e.catalog.ListLinkedVendorItems(tenantID, canonicalID)
	if err != nil {
		return fmt.Errorf("list linked vendor items: %w", err)
	}

	type priced struct {
		item  dbpkg.VendorItem
		price decimal.Decimal
	}
	var rows []priced
	for _, vi := range linked {
		st, err := e.stats.Get(tenantID, vi.VendorID, vi.ItemNumber)
		if err != nil {
			return fmt.Errorf("load stats for vendor %d item %s: %w", vi.VendorID, vi.ItemNumber, err)
		}
		if st == nil || st.LastPaidPrice.Sign() <= 0 {
			// Items without a valid price keep their stale cross-vendor
			// fields until they next report one.
			continue
		}
		rows = append(rows, priced{item: vi, price: st.LastPaidPrice})
	}
	if len(rows) == 0 {
		return nil
	}

	best := rows[0]
	for _, r := range rows[1:] {
		if r.price.LessThan(best.price) {
			best = r
		}
	}
	bestPrice := best.price
	bestVendor := best.item.Vendor.Name

	for _, r := range rows {
		diff := pctDiff(r.price, bestPrice)
		patch := dbpkg.ItemStatsPatch{
			BestPriceAcrossVendors: &bestPrice,
			BestVendorName:         &bestVendor,
			DiffVsBestPct:          &diff,
		}
		if err := e.stats.Upsert(tenantID, r.item.VendorID, r.item.ItemNumber, patch); err != nil {
			fanoutRowFailures.Inc()
			e.log.WithFields(logrus.Fields{
				"tenant":    tenantID,
				"canonical": canonicalID,
				"vendor":    r.item.VendorID,
				"item":      r.item.ItemNumber,
			}).WithError(err).Warn("fanout row update failed")
		}
	}
	return nil
}

func (e *Engine) logKey(key ItemKey) *logrus.Entry {
	return e.log.WithFields(logrus.Fields{
		"tenant": key.TenantID,
		"vendor": key.VendorID,
		"item":   key.ItemNumber,
	})
}
