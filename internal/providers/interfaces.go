package providers

import (
	"context"

	"github.com/nvasquez/portfolio-chat/backend/internal/catalog"
	"github.com/nvasquez/portfolio-chat/backend/internal/models"
)

// Completer produces a chat completion from one named provider. The caller
// supplies the timeout through ctx; implementations must respect it.
type Completer interface {
	Complete(ctx context.Context, p catalog.Provider, message string, history []models.Message) (models.Completion, error)
}
