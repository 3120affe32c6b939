package handlers

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "priceintel/internal/db"
)

// MetricsHandler serves the full Prometheus scrape in text format.
func MetricsHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		metricFamilies, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to gather metrics")
			return
		}
		writeMetricFamilies(ctx, metricFamilies)
	}
}

// TenantMetricsHandler serves metrics filtered to the tenant of the presented
// API key. Metric families without a tenant label pass through unfiltered;
// tenant-labelled families keep only that tenant's series. Keys without a
// tenant scope see everything.
func TenantMetricsHandler(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		apiKeyValue := string(ctx.QueryArgs().Peek("api-key"))
		if apiKeyValue == "" {
			errResponse(ctx, fasthttp.StatusUnauthorized, "missing api-key query parameter")
			return
		}

		key, err := dbpkg.FindAPIKeyByToken(db, apiKeyValue)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}
		if key == nil {
			errResponse(ctx, fasthttp.StatusUnauthorized, "invalid API key")
			return
		}

		metricFamilies, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to gather metrics")
			return
		}

		if key.TenantID == "" {
			writeMetricFamilies(ctx, metricFamilies)
			return
		}

		filtered := make([]*dto.MetricFamily, 0, len(metricFamilies))
		for _, mf := range metricFamilies {
			hasTenantLabel := false
			for _, m := range mf.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "tenant" {
						hasTenantLabel = true
						break
					}
				}
				if hasTenantLabel {
					break
				}
			}

			if !hasTenantLabel {
				filtered = append(filtered, mf)
				continue
			}

			var kept []*dto.Metric
			for _, m := range mf.GetMetric() {
				include := false
				for _, l := range m.GetLabel() {
					if l.GetName() == "tenant" && l.GetValue() == key.TenantID {
						include = true
						break
					}
				}
				if include {
					kept = append(kept, m)
				}
			}

			if len(kept) == 0 {
				continue
			}

			filtered = append(filtered, &dto.MetricFamily{
				Name:   mf.Name,
				Help:   mf.Help,
				Type:   mf.Type,
				Metric: kept,
			})
		}

		writeMetricFamilies(ctx, filtered)
	}
}

func writeMetricFamilies(ctx *fasthttp.RequestCtx, families []*dto.MetricFamily) {
	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to encode metrics")
			return
		}
	}
	ctx.SetContentType(string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(buf.Bytes())
}
