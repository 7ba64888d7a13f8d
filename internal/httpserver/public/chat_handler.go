package public

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nvasquez/portfolio-chat/backend/internal/app"
	"github.com/nvasquez/portfolio-chat/backend/internal/executor"
	"github.com/nvasquez/portfolio-chat/backend/internal/httpserver/httputil"
)

const maxMessageLength = 4000

// Register wires the visitor-facing chat route.
func Register(fiberApp *fiber.App, container *app.Container) {
	handler := &chatHandler{container: container}
	fiberApp.Post("/api/chat", handler.chat)
}

type chatHandler struct {
	container *app.Container
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
}

func (h *chatHandler) chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "message is required")
	}
	if len(req.Message) > maxMessageLength {
		return httputil.WriteError(c, fiber.StatusBadRequest, "message too long")
	}

	result, err := h.container.Executor.Execute(c.UserContext(), c.IP(), req.SessionID, req.Message)
	if err != nil {
		var throttled *executor.ThrottledError
		switch {
		case errors.As(err, &throttled):
			resp := fiber.Map{"error": throttled.Reason}
			if throttled.RetryAfterSeconds > 0 {
				resp["retry_after_seconds"] = throttled.RetryAfterSeconds
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(resp)
		case errors.Is(err, executor.ErrRoutingExhausted), errors.Is(err, executor.ErrAllProvidersFailed):
			// Kept generic on purpose: backend identities stay internal.
			return httputil.WriteError(c, fiber.StatusServiceUnavailable, "service temporarily unavailable, try again later")
		default:
			h.container.Logger.Error("chat request failed", "error", err)
			return httputil.WriteError(c, fiber.StatusInternalServerError, "internal error")
		}
	}

	return c.JSON(chatResponse{
		Response:  result.Text,
		SessionID: result.SessionID,
		Provider:  result.ProviderID,
	})
}
