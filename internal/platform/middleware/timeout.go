package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. Database calls
// observe it and roll back; a handler that fails because the deadline passed
// is reported as 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && ctx.Err() == context.DeadlineExceeded && !c.Response().Committed {
				var he *echo.HTTPError
				if !errors.As(err, &he) || he.Code >= http.StatusInternalServerError {
					return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit").SetInternal(err)
				}
			}
			return err
		}
	}
}
