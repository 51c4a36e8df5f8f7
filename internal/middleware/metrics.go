package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/example/walletshop/internal/metrics"
)

// MetricsMiddleware counts served requests by route pattern.
func MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		metrics.HTTPRequest(c.Method(), c.Route().Path, strconv.Itoa(status))
		return err
	}
}
