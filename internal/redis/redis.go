package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"peasurvey/internal/config"
	"peasurvey/internal/models"

	redis "github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by NewSessionMirror when no host is configured.
var ErrDisabled = errors.New("redis not configured")

const keyPrefix = "pea:session:"

// SessionMirror keeps a JSON snapshot of each live conversation in redis. The
// key expires together with the session, so nothing outlives it.
type SessionMirror struct {
	inner *redis.Client
	ttl   time.Duration
}

// NewSessionMirror connects to the configured redis and checks it answers.
func NewSessionMirror(cfg *config.Config) (*SessionMirror, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if cfg.Redis.Host == "" {
		return nil, ErrDisabled
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newSessionMirror(client, cfg.BasicConfig.SessionTTL()), nil
}

func newSessionMirror(client *redis.Client, ttl time.Duration) *SessionMirror {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SessionMirror{inner: client, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}

// Load returns the stored history, reporting false on a miss or a bad payload.
func (m *SessionMirror) Load(ctx context.Context, sessionID string) ([]models.Message, bool) {
	if m == nil || m.inner == nil {
		return nil, false
	}
	raw, err := m.inner.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("session mirror load %s failed: %v", sessionID, err)
		}
		return nil, false
	}
	var history []models.Message
	if err := json.Unmarshal(raw, &history); err != nil {
		log.Printf("session mirror decode %s failed: %v", sessionID, err)
		return nil, false
	}
	return history, true
}

// Save overwrites the snapshot and refreshes its expiry.
func (m *SessionMirror) Save(ctx context.Context, sessionID string, history []models.Message) {
	if m == nil || m.inner == nil {
		return
	}
	data, err := json.Marshal(history)
	if err != nil {
		log.Printf("session mirror marshal failed: %v", err)
		return
	}
	if err := m.inner.Set(ctx, sessionKey(sessionID), data, m.ttl).Err(); err != nil {
		log.Printf("session mirror save %s failed: %v", sessionID, err)
	}
}

// Forget deletes the snapshot.
func (m *SessionMirror) Forget(ctx context.Context, sessionID string) {
	if m == nil || m.inner == nil {
		return
	}
	if err := m.inner.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		log.Printf("session mirror delete %s failed: %v", sessionID, err)
	}
}

// Close closes client.
func (m *SessionMirror) Close() error {
	if m == nil || m.inner == nil {
		return nil
	}
	return m.inner.Close()
}
