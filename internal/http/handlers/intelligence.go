package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"priceintel/internal/cache"
	dbpkg "priceintel/internal/db"
)

// PriceIntelligenceHandler returns the price intelligence row for one
// (tenant, vendor, item) key, or 404 if the key was never ingested. The
// vendor may be given by numeric id ("vendor_id") or by name ("vendor").
func PriceIntelligenceHandler(db *gorm.DB, c *cache.Cache) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID := string(ctx.QueryArgs().Peek("tenant"))
		itemNumber := string(ctx.QueryArgs().Peek("item"))
		if tenantID == "" || itemNumber == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "tenant and item are required")
			return
		}

		vendorID, ok := resolveVendorID(ctx, db, tenantID)
		if !ok {
			return
		}

		if body, hit := c.GetIntelligence(ctx, tenantID, vendorID, itemNumber); hit {
			ctx.SetContentType("application/json")
			ctx.SetBody(body)
			return
		}

		intel, err := dbpkg.GetPriceIntelligence(db, tenantID, vendorID, itemNumber)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query price intelligence")
			return
		}
		if intel == nil {
			errResponse(ctx, fasthttp.StatusNotFound, "unknown (tenant, vendor, item) key")
			return
		}

		body, _ := json.Marshal(intel)
		c.SetIntelligence(ctx, tenantID, vendorID, itemNumber, body)
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	}
}

// CompareVendorsHandler lists every vendor's latest price for one canonical
// item.
func CompareVendorsHandler(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tenantID := string(ctx.QueryArgs().Peek("tenant"))
		canonicalStr := string(ctx.QueryArgs().Peek("canonical"))
		if tenantID == "" || canonicalStr == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "tenant and canonical are required")
			return
		}
		canonicalID, err := strconv.ParseUint(canonicalStr, 10, 64)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "canonical must be a numeric id")
			return
		}

		rows, err := dbpkg.CompareVendors(db, tenantID, uint(canonicalID))
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query vendor comparison")
			return
		}
		jsonResponse(ctx, map[string]any{"canonical_item_id": canonicalID, "vendors": rows})
	}
}

// resolveVendorID reads the vendor from the query, by id or by name. On
// failure it writes the error response and returns false.
func resolveVendorID(ctx *fasthttp.RequestCtx, db *gorm.DB, tenantID string) (uint, bool) {
	if s := string(ctx.QueryArgs().Peek("vendor_id")); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "vendor_id must be a numeric id")
			return 0, false
		}
		return uint(id), true
	}

	name := string(ctx.QueryArgs().Peek("vendor"))
	if name == "" {
		errResponse(ctx, fasthttp.StatusBadRequest, "vendor or vendor_id is required")
		return 0, false
	}
	vendor, err := dbpkg.FindVendorByName(db, tenantID, name)
	if err != nil {
		errResponse(ctx, fasthttp.StatusInternalServerError, "failed to look up vendor")
		return 0, false
	}
	if vendor == nil {
		errResponse(ctx, fasthttp.StatusNotFound, "unknown vendor")
		return 0, false
	}
	return vendor.ID, true
}
