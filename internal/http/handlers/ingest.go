package handlers

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"priceintel/internal/cache"
	dbpkg "priceintel/internal/db"
	"priceintel/internal/engine"
	httpctx "priceintel/internal/http/ctx"
)

type ingestRequest struct {
	Lines []engine.Line `json:"lines"`
}

// IngestHandler accepts a batch of normalized invoice lines and feeds them to
// the engine. Per-line business failures are reported in the response, never
// as an HTTP error; the request fails only for malformed payloads.
func IngestHandler(sqlDB *gorm.DB, eng *engine.Engine, c *cache.Cache) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload ingestRequest
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(payload.Lines) == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "no lines provided")
			return
		}

		// A tenant-scoped API key pins every line to its tenant regardless
		// of what the payload claims.
		if ak, ok := httpctx.APIKeyFromCtx(ctx); ok && ak != nil && ak.TenantID != "" {
			for i := range payload.Lines {
				payload.Lines[i].TenantID = ak.TenantID
			}
		}

		result := eng.RecordBatch(payload.Lines, true)

		invalidateTouched(ctx, sqlDB, c, result)

		ctx.SetStatusCode(fasthttp.StatusAccepted)
		jsonResponse(ctx, result)
	}
}

// invalidateTouched drops cached intelligence for every ingested key and for
// the sibling keys of each touched canonical item, since fan-out may have
// changed their cross-vendor fields too.
func invalidateTouched(ctx *fasthttp.RequestCtx, sqlDB *gorm.DB, c *cache.Cache, result engine.BatchResult) {
	if c == nil {
		return
	}
	seen := make(map[string]struct{})
	var keys []string
	add := func(tenantID string, vendorID uint, itemNumber string) {
		k := cache.IntelligenceKey(tenantID, vendorID, itemNumber)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	canonicals := make(map[string]map[uint]struct{})
	for _, out := range result.Results {
		if !out.OK() {
			continue
		}
		key, ok := out.Key()
		if !ok {
			continue
		}
		add(key.TenantID, key.VendorID, key.ItemNumber)
		if canonicals[key.TenantID] == nil {
			canonicals[key.TenantID] = make(map[uint]struct{})
		}
		canonicals[key.TenantID][out.CanonicalItemID] = struct{}{}
	}
	catalog := dbpkg.NewCatalogStore(sqlDB)
	for tenant, ids := range canonicals {
		for id := range ids {
			linked, err := catalog.ListLinkedVendorItems(tenant, id)
			if err != nil {
				continue
			}
			for _, vi := range linked {
				add(tenant, vi.VendorID, vi.ItemNumber)
			}
		}
	}
	c.InvalidateIntelligence(ctx, keys)
}
