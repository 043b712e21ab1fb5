// Package storage persists conversation continuation state between turns.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/saker-ai/assistant-bridge/internal/config"
)

var (
	ErrNotFound  = errors.New("conversation not found")
	ErrInvalidID = errors.New("invalid conversation id")
)

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

// Conversation is the stored record of one multi-turn conversation. State
// is the opaque blob replayed on the next turn.
type Conversation struct {
	ID               string    `json:"id"`
	State            []byte    `json:"state,omitempty"`
	Turns            int       `json:"turns"`
	LastRequestText  string    `json:"last_request_text,omitempty"`
	LastResponseText string    `json:"last_response_text,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StateStore keeps conversations by id.
type StateStore interface {
	Create(ctx context.Context) (Conversation, error)
	Get(ctx context.Context, id string) (Conversation, error)
	Save(ctx context.Context, conv Conversation) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// NewID returns a sortable unique conversation id.
func NewID() string {
	return time.Now().UTC().Format("20060102-150405") + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidID reports whether id is safe to use as a file name or key suffix.
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." && safeNamePattern.MatchString(id)
}

func newConversation() Conversation {
	now := time.Now().UTC()
	return Conversation{ID: NewID(), CreatedAt: now, UpdatedAt: now}
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg appconfig.StateStoreConfig) (StateStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory":
		return NewMemoryStore(), nil
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown state store backend %q", cfg.Backend)
	}
}
