package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scoutalgo/clover/pkg/reqctx"
)

// HeaderRunID lets a caller correlate a request with a matching run
const HeaderRunID = "X-Run-ID"

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = reqctx.SetRequestID(ctx, requestID)
			ctx = reqctx.SetMethod(ctx, req.Method)
			ctx = reqctx.SetRoute(ctx, c.Path())
			ctx = reqctx.SetRemoteIP(ctx, c.RealIP())
			if runID := req.Header.Get(HeaderRunID); runID != "" {
				ctx = reqctx.SetRunID(ctx, runID)
			}

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
