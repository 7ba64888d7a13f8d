package admin

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nvasquez/portfolio-chat/backend/internal/app"
	"github.com/nvasquez/portfolio-chat/backend/internal/httpserver/httputil"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/routing"
)

type routingHandler struct {
	container *app.Container
}

func registerRoutingRoutes(router fiber.Router, container *app.Container) {
	handler := &routingHandler{container: container}
	router.Get("/routing", handler.get)
	router.Put("/routing", handler.update)
}

type providerView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ModelID     string `json:"model_id"`
	Available   bool   `json:"available"`
	Description string `json:"description"`
}

func (h *routingHandler) get(c *fiber.Ctx) error {
	settings, err := h.container.Routing.Get(c.UserContext())
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}

	cat := h.container.Catalog
	views := make([]providerView, 0, len(cat.AllIDs()))
	for _, id := range cat.AllIDs() {
		p := cat.Get(id)
		views = append(views, providerView{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			ModelID:     p.ModelID,
			Available:   cat.IsAvailable(id),
			Description: p.Description,
		})
	}

	return c.JSON(fiber.Map{
		"settings":  settings,
		"providers": views,
	})
}

type routingUpdateRequest struct {
	Preferred     string   `json:"preferred"`
	FallbackOrder []string `json:"fallback_order"`
}

func (h *routingHandler) update(c *fiber.Ctx) error {
	var req routingUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}

	settings, err := h.container.Routing.Update(c.UserContext(), routing.Settings{
		Preferred:     req.Preferred,
		FallbackOrder: req.FallbackOrder,
	})
	if err != nil {
		switch {
		case errors.Is(err, routing.ErrUnknownProvider), errors.Is(err, routing.ErrProviderUnavailable):
			return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
		default:
			return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(fiber.Map{"settings": settings})
}
