package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"peasurvey/internal/models"
)

var (
	// ErrBusy is returned while a query is already in flight for the session.
	ErrBusy = errors.New("a query is already in progress")
	// ErrInvalidMessage rejects messages that would break the sequence invariants.
	ErrInvalidMessage = errors.New("invalid message")
)

type EventType string

const (
	EventMessageAppended EventType = "message"
	EventLoadingChanged  EventType = "loading"
)

// Event is delivered to subscribers after the store changed.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	Message   *models.Message `json:"message,omitempty"`
	Loading   bool            `json:"loading"`
}

// Store is the ordered, append-only message list of one session plus its
// transient loading flag.
type Store struct {
	sessionID string

	mu        sync.RWMutex
	messages  []models.Message
	ids       map[string]struct{}
	loading   bool
	lastSeen  time.Time
	listeners map[int]func(Event)
	nextID    int
}

// NewStore builds an empty store for sessionID.
func NewStore(sessionID string) *Store {
	return &Store{
		sessionID: sessionID,
		ids:       make(map[string]struct{}),
		listeners: make(map[int]func(Event)),
		lastSeen:  time.Now(),
	}
}

// NewMessage stamps a message with a time-ordered identifier.
func NewMessage(role models.Role, text string) (models.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.Message{}, fmt.Errorf("message id: %w", err)
	}
	return models.Message{
		ID:        id.String(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}, nil
}

func (s *Store) SessionID() string {
	return s.sessionID
}

// Append adds msg to the end of the sequence.
func (s *Store) Append(msg models.Message) error {
	if err := checkMessage(msg); err != nil {
		return err
	}
	s.mu.Lock()
	if _, dup := s.ids[msg.ID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidMessage, msg.ID)
	}
	stored := msg.Clone()
	s.messages = append(s.messages, stored)
	s.ids[msg.ID] = struct{}{}
	s.lastSeen = time.Now()
	s.mu.Unlock()

	out := stored.Clone()
	s.emit(Event{Type: EventMessageAppended, SessionID: s.sessionID, Message: &out, Loading: s.Loading()})
	return nil
}

func checkMessage(msg models.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}
	switch msg.Role {
	case models.RoleUser:
		if msg.Result != nil || len(msg.MapLinks) > 0 {
			return fmt.Errorf("%w: user message cannot carry a result", ErrInvalidMessage)
		}
	case models.RoleAssistant:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, msg.Role)
	}
	return nil
}

// Messages returns a copy of the sequence in order.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// BeginQuery raises the loading flag. The returned release lowers it; calling
// release more than once has no further effect.
func (s *Store) BeginQuery() (func(), error) {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.loading = true
	s.lastSeen = time.Now()
	s.mu.Unlock()
	s.emit(Event{Type: EventLoadingChanged, SessionID: s.sessionID, Loading: true})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.loading = false
			s.lastSeen = time.Now()
			s.mu.Unlock()
			s.emit(Event{Type: EventLoadingChanged, SessionID: s.sessionID, Loading: false})
		})
	}, nil
}

// Subscribe registers fn for every later event. Listeners run synchronously on
// the goroutine that changed the store and must not block.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) emit(ev Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Store) idleSince() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen, s.loading
}

func (s *Store) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// seed fills a fresh store from a snapshot before anyone can observe it.
func (s *Store) seed(history []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range history {
		if checkMessage(m) != nil {
			continue
		}
		if _, dup := s.ids[m.ID]; dup {
			continue
		}
		s.messages = append(s.messages, m.Clone())
		s.ids[m.ID] = struct{}{}
	}
}
