package admin

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nvasquez/portfolio-chat/backend/internal/app"
	"github.com/nvasquez/portfolio-chat/backend/internal/httpserver/httputil"
)

// Register wires up all /admin routes behind the shared-token middleware.
// Real operator authentication lives in front of this service; the token is
// a backstop for direct exposure.
func Register(fiberApp *fiber.App, container *app.Container) {
	protected := fiberApp.Group("/admin", tokenAuth(container))
	registerRoutingRoutes(protected, container)
	registerQuotaRoutes(protected, container)
	registerErrorRoutes(protected, container)
}

func tokenAuth(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := container.Config.Admin.APIToken
		if token == "" {
			return httputil.WriteError(c, fiber.StatusServiceUnavailable, "admin API not configured")
		}
		header := c.Get(fiber.HeaderAuthorization)
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "invalid admin token")
		}
		return c.Next()
	}
}
