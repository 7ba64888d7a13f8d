package providers

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/nvasquez/portfolio-chat/backend/internal/catalog"
	"github.com/nvasquez/portfolio-chat/backend/internal/models"
)

var ErrNoCredential = errors.New("provider credential not configured")
var ErrEmptyCompletion = errors.New("provider returned no choices")

// OpenAICompat talks to any OpenAI-compatible endpoint (Gemini, Mistral and
// Groq all expose one) through the official SDK. Clients are built lazily
// per provider and reused.
type OpenAICompat struct {
	creds catalog.CredentialSource

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewOpenAICompat(creds catalog.CredentialSource) *OpenAICompat {
	if creds == nil {
		creds = catalog.EnvCredentials{}
	}
	return &OpenAICompat{creds: creds, clients: make(map[string]*openai.Client)}
}

func (o *OpenAICompat) Complete(ctx context.Context, p catalog.Provider, message string, history []models.Message) (models.Completion, error) {
	client, err := o.clientFor(p)
	if err != nil {
		return models.Completion{}, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	for _, msg := range history {
		switch msg.Role {
		case models.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.ChatCompletionMessageParamOfAssistant(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	messages = append(messages, openai.UserMessage(message))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.ModelID),
		Messages: messages,
	})
	if err != nil {
		return models.Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return models.Completion{}, ErrEmptyCompletion
	}

	return models.Completion{
		Text:      resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

func (o *OpenAICompat) clientFor(p catalog.Provider) (*openai.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if client, ok := o.clients[p.ID]; ok {
		return client, nil
	}

	key, ok := o.creds.Lookup(p.CredentialKey)
	if !ok {
		return nil, ErrNoCredential
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if strings.TrimSpace(p.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(p.BaseURL, "/")))
	}
	client := openai.NewClient(opts...)
	o.clients[p.ID] = &client
	return &client, nil
}
