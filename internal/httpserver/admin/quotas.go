package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nvasquez/portfolio-chat/backend/internal/app"
	"github.com/nvasquez/portfolio-chat/backend/internal/httpserver/httputil"
)

type quotaHandler struct {
	container *app.Container
}

func registerQuotaRoutes(router fiber.Router, container *app.Container) {
	handler := &quotaHandler{container: container}
	router.Get("/quotas", handler.list)
}

func (h *quotaHandler) list(c *fiber.Ctx) error {
	ids := h.container.Catalog.AllIDs()
	statuses, err := h.container.Quotas.AllQuotas(c.UserContext(), ids)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"quotas": statuses})
}
