package handlers

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(log *logrus.Logger, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.WithFields(logrus.Fields{
			"method":   string(ctx.Method()),
			"path":     string(ctx.Path()),
			"status":   ctx.Response.StatusCode(),
			"duration": time.Since(start).String(),
			"ip":       ctx.RemoteAddr().String(),
		}).Info("request")
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}
