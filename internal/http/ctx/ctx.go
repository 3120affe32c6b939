package ctx

import (
	"github.com/valyala/fasthttp"

	dbpkg "priceintel/internal/db"
)

const (
	APIKeyKey = "apiKey"
)

func SetAPIKey(ctx *fasthttp.RequestCtx, apiKey *dbpkg.APIKey) {
	ctx.SetUserValue(APIKeyKey, apiKey)
}

func APIKeyFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.APIKey, bool) {
	v := ctx.UserValue(APIKeyKey)
	if v == nil {
		return nil, false
	}
	ak, ok := v.(*dbpkg.APIKey)
	return ak, ok
}
