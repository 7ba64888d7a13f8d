package admin

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nvasquez/portfolio-chat/backend/internal/app"
	"github.com/nvasquez/portfolio-chat/backend/internal/httpserver/httputil"
)

type errorsHandler struct {
	container *app.Container
}

func registerErrorRoutes(router fiber.Router, container *app.Container) {
	handler := &errorsHandler{container: container}
	router.Get("/errors", handler.list)
}

func (h *errorsHandler) list(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	window := 24 * time.Hour
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return httputil.WriteError(c, fiber.StatusBadRequest, "invalid window")
		}
		window = parsed
	}

	recent, err := h.container.ErrorLog.Recent(c.UserContext(), limit)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}
	counts, err := h.container.ErrorLog.Counts(c.UserContext(), window)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"recent": recent,
		"counts": counts,
		"window": window.String(),
	})
}
