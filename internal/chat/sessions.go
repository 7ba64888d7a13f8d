package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nvasquez/portfolio-chat/backend/internal/models"
)

// SessionStore keeps conversation history in Redis keyed by session id.
// History is advisory state: a lost session simply starts a fresh
// conversation, so no durability beyond the TTL is attempted.
type SessionStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxHistory int
}

func NewSessionStore(client *redis.Client, ttl time.Duration, maxHistory int) *SessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &SessionStore{client: client, ttl: ttl, maxHistory: maxHistory}
}

// Load returns the history for sessionID. An empty, unknown or expired id
// yields a fresh session with a new UUID.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (string, []models.Message, error) {
	if sessionID == "" {
		return uuid.NewString(), nil, nil
	}

	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return sessionID, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var history []models.Message
	if err := json.Unmarshal(data, &history); err != nil {
		// A corrupt record is unrecoverable; drop it and start over.
		s.client.Del(ctx, s.key(sessionID))
		return sessionID, nil, nil
	}
	return sessionID, history, nil
}

// Append adds the user/assistant exchange to the session, trimming the
// oldest messages beyond the history cap, and refreshes the TTL.
func (s *SessionStore) Append(ctx context.Context, sessionID string, userMsg, assistantMsg string) error {
	_, history, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	history = append(history,
		models.Message{Role: models.RoleUser, Content: userMsg},
		models.Message{Role: models.RoleAssistant, Content: assistantMsg},
	)
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SessionStore) key(sessionID string) string {
	return "chat:session:" + sessionID
}
