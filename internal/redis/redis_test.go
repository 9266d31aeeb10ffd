package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"peasurvey/internal/config"
	"peasurvey/internal/models"
)

func TestNewSessionMirrorDisabledWithoutHost(t *testing.T) {
	if _, err := NewSessionMirror(&config.Config{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	var m *SessionMirror
	if _, ok := m.Load(context.Background(), "x"); ok {
		t.Fatalf("nil mirror must miss")
	}
	m.Save(context.Background(), "x", nil)
	m.Forget(context.Background(), "x")
}

func TestSessionMirrorSaveLoadForget(t *testing.T) {
	mirror := newTestMirror(t)
	defer mirror.Close()
	ctx := context.Background()

	history := []models.Message{
		{ID: "01", Role: models.RoleUser, Text: "ขอขยายเขตไฟฟ้าแถว ไร่สุวรรณ ปากช่อง", CreatedAt: time.Now().UTC()},
		{ID: "02", Role: models.RoleAssistant, Text: "ok", CreatedAt: time.Now().UTC(),
			Result:   &models.LocationResult{OfficeName: "กฟภ.ปากช่อง", Province: "นครราชสีมา", Confidence: models.ConfidenceHigh},
			MapLinks: []string{"https://maps.google.com/?cid=1"}},
	}
	mirror.Save(ctx, "s1", history)

	got, ok := mirror.Load(ctx, "s1")
	if !ok || len(got) != 2 {
		t.Fatalf("expected snapshot, got %v %v", got, ok)
	}
	if got[1].Result == nil || got[1].Result.Province != "นครราชสีมา" || got[1].MapLinks[0] != history[1].MapLinks[0] {
		t.Fatalf("snapshot content mismatch: %+v", got[1])
	}
	ttl, err := mirror.inner.TTL(ctx, sessionKey("s1")).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected expiring key, ttl=%v err=%v", ttl, err)
	}

	mirror.Forget(ctx, "s1")
	if _, ok := mirror.Load(ctx, "s1"); ok {
		t.Fatalf("expected snapshot forgotten")
	}
}

func newTestMirror(t *testing.T) *SessionMirror {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed mirror tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis:       config.RedisConfig{Host: host, Port: port, DB: db},
		BasicConfig: config.BasicConfig{SessionTTLMinutes: 5},
	}
	mirror, err := NewSessionMirror(cfg)
	if err != nil {
		t.Fatalf("redis mirror: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mirror.inner.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush db: %v", err)
	}
	return mirror
}
