package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"peasurvey/internal/models"
)

func mustMessage(t *testing.T, role models.Role, text string) models.Message {
	t.Helper()
	msg, err := NewMessage(role, text)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	return msg
}

func TestStoreAppendKeepsOrderAndCopies(t *testing.T) {
	st := NewStore("s")
	user := mustMessage(t, models.RoleUser, "หม้อแปลงระเบิดหน้าตลาดน้ำอัมพวา")
	reply := mustMessage(t, models.RoleAssistant, "ok")
	reply.Result = &models.LocationResult{OfficeName: "X", Province: "Y", Confidence: models.ConfidenceLow}
	reply.MapLinks = []string{"https://maps.google.com/?cid=1"}

	if err := st.Append(user); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := st.Append(reply); err != nil {
		t.Fatalf("append reply: %v", err)
	}

	// Mutating the caller's copy must not reach the stored message.
	reply.Result.OfficeName = "changed"
	reply.MapLinks[0] = "changed"

	got := st.Messages()
	if len(got) != 2 || got[0].ID != user.ID || got[1].ID != reply.ID {
		t.Fatalf("order mismatch: %+v", got)
	}
	if got[1].Result.OfficeName != "X" || got[1].MapLinks[0] != "https://maps.google.com/?cid=1" {
		t.Fatalf("stored message was mutated: %+v", got[1])
	}
	got[1].Result.Province = "changed"
	if st.Messages()[1].Result.Province != "Y" {
		t.Fatalf("Messages must return copies")
	}
	if got[0].ID >= got[1].ID {
		t.Fatalf("ids not time ordered: %s >= %s", got[0].ID, got[1].ID)
	}
}

func TestStoreRejectsInvalidMessages(t *testing.T) {
	st := NewStore("s")
	withResult := mustMessage(t, models.RoleUser, "q")
	withResult.Result = &models.LocationResult{OfficeName: "X"}
	if err := st.Append(withResult); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected user result rejection, got %v", err)
	}
	withLinks := mustMessage(t, models.RoleUser, "q")
	withLinks.MapLinks = []string{"u"}
	if err := st.Append(withLinks); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected user link rejection, got %v", err)
	}
	if err := st.Append(models.Message{Role: models.RoleUser, Text: "no id"}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected missing id rejection, got %v", err)
	}
	bad := mustMessage(t, "system", "x")
	if err := st.Append(bad); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected role rejection, got %v", err)
	}
	ok := mustMessage(t, models.RoleUser, "q")
	if err := st.Append(ok); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Append(ok); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if st.Len() != 1 {
		t.Fatalf("expected single message, got %d", st.Len())
	}
}

func TestStoreLoadingReleaseOnce(t *testing.T) {
	st := NewStore("s")
	var mu sync.Mutex
	var transitions []bool
	cancel := st.Subscribe(func(ev Event) {
		if ev.Type == EventLoadingChanged {
			mu.Lock()
			transitions = append(transitions, ev.Loading)
			mu.Unlock()
		}
	})
	defer cancel()

	release, err := st.BeginQuery()
	if err != nil {
		t.Fatalf("BeginQuery: %v", err)
	}
	if !st.Loading() {
		t.Fatalf("loading flag not set")
	}
	if _, err := st.BeginQuery(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	release()
	release()
	if st.Loading() {
		t.Fatalf("loading flag not cleared")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Fatalf("expected [true false], got %v", transitions)
	}
}

func TestStoreSubscribeAndCancel(t *testing.T) {
	st := NewStore("s")
	var events []Event
	cancel := st.Subscribe(func(ev Event) { events = append(events, ev) })

	msg := mustMessage(t, models.RoleUser, "q")
	if err := st.Append(msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	cancel()
	if err := st.Append(mustMessage(t, models.RoleAssistant, "a")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event before cancel, got %d", len(events))
	}
	if events[0].Type != EventMessageAppended || events[0].Message.ID != msg.ID || events[0].SessionID != "s" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

type memorySnapshots struct {
	mu     sync.Mutex
	data   map[string][]models.Message
	forgot []string
}

func (m *memorySnapshots) Load(ctx context.Context, id string) ([]models.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.data[id]
	return h, ok
}

func (m *memorySnapshots) Save(ctx context.Context, id string, h []models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = h
}

func (m *memorySnapshots) Forget(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	m.forgot = append(m.forgot, id)
}

func TestRegistryRestoresAndMirrors(t *testing.T) {
	seed := mustMessage(t, models.RoleUser, "seed")
	snaps := &memorySnapshots{data: map[string][]models.Message{"old": {seed}}}
	reg := NewRegistry(time.Hour, snaps)

	var created []string
	reg.OnCreate(func(st *Store) { created = append(created, st.SessionID()) })

	st := reg.Get(context.Background(), "old")
	if st.Len() != 1 || st.Messages()[0].ID != seed.ID {
		t.Fatalf("store not restored from snapshot: %+v", st.Messages())
	}
	if reg.Get(context.Background(), "old") != st {
		t.Fatalf("expected same store on second Get")
	}
	if len(created) != 1 || created[0] != "old" {
		t.Fatalf("OnCreate hooks mismatch: %v", created)
	}

	if err := st.Append(mustMessage(t, models.RoleAssistant, "reply")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if h, _ := snaps.Load(context.Background(), "old"); len(h) != 2 {
		t.Fatalf("snapshot not updated after append: %d", len(h))
	}

	reg.Drop(context.Background(), "old")
	if _, ok := reg.Lookup("old"); ok {
		t.Fatalf("store not dropped")
	}
	if len(snaps.forgot) != 1 {
		t.Fatalf("snapshot not forgotten")
	}
}

func TestRegistryDropStopsMirroringInFlightReply(t *testing.T) {
	snaps := &memorySnapshots{data: map[string][]models.Message{}}
	reg := NewRegistry(time.Hour, snaps)

	st := reg.Get(context.Background(), "s1")
	release, err := st.BeginQuery()
	if err != nil {
		t.Fatalf("BeginQuery: %v", err)
	}
	if err := st.Append(mustMessage(t, models.RoleUser, "ไฟตก")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, ok := snaps.Load(context.Background(), "s1"); !ok {
		t.Fatalf("user message not mirrored")
	}

	reg.Drop(context.Background(), "s1")
	// The reply lands on the discarded store after the reset.
	if err := st.Append(mustMessage(t, models.RoleAssistant, "reply")); err != nil {
		t.Fatalf("append: %v", err)
	}
	release()

	if h, ok := snaps.Load(context.Background(), "s1"); ok {
		t.Fatalf("dropped session written back with %d messages", len(h))
	}
	if fresh := reg.Get(context.Background(), "s1"); fresh == st || fresh.Len() != 0 {
		t.Fatalf("expected an empty store after drop, got %d messages", fresh.Len())
	}
}

type slowSnapshots struct {
	memorySnapshots
	gate chan struct{}
}

func (s *slowSnapshots) Load(ctx context.Context, id string) ([]models.Message, bool) {
	if id == "slow" {
		<-s.gate
	}
	return s.memorySnapshots.Load(ctx, id)
}

func TestRegistryGetDoesNotBlockOnSlowLoad(t *testing.T) {
	snaps := &slowSnapshots{memorySnapshots: memorySnapshots{data: map[string][]models.Message{}}, gate: make(chan struct{})}
	reg := NewRegistry(time.Hour, snaps)

	done := make(chan *Store, 1)
	go func() { done <- reg.Get(context.Background(), "slow") }()

	fast := make(chan *Store, 1)
	go func() { fast <- reg.Get(context.Background(), "fast") }()
	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatalf("Get for another session blocked behind a slow snapshot load")
	}

	close(snaps.gate)
	select {
	case st := <-done:
		if reg.Get(context.Background(), "slow") != st {
			t.Fatalf("expected the loaded store to be kept")
		}
	case <-time.After(time.Second):
		t.Fatalf("slow Get never returned")
	}
}

func TestRegistryExpireIdleSkipsLoading(t *testing.T) {
	reg := NewRegistry(time.Minute, nil)
	idle := reg.Get(context.Background(), "idle")
	busy := reg.Get(context.Background(), "busy")
	release, err := busy.BeginQuery()
	if err != nil {
		t.Fatalf("BeginQuery: %v", err)
	}
	defer release()
	_ = idle

	if n := reg.ExpireIdle(time.Now()); n != 0 {
		t.Fatalf("fresh sessions must not expire, got %d", n)
	}
	if n := reg.ExpireIdle(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected one expired session, got %d", n)
	}
	if _, ok := reg.Lookup("idle"); ok {
		t.Fatalf("idle session still present")
	}
	if _, ok := reg.Lookup("busy"); !ok {
		t.Fatalf("loading session must be kept")
	}
}
