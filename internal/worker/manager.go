package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"peasurvey/internal/conversation"
	"peasurvey/internal/models"
	"peasurvey/internal/service/parser"
)

// FailureNotice replaces the assistant reply when the model call fails.
const FailureNotice = "ขออภัย เกิดข้อผิดพลาดในการเชื่อมต่อกับระบบ AI กรุณาลองใหม่อีกครั้ง"

const (
	queueLen           = 1
	defaultIdleTimeout = 5 * time.Minute
)

var (
	ErrEmptyQuery  = errors.New("query is empty")
	ErrQueueFull   = errors.New("session queue full")
	ErrRateLimited = errors.New("too many queries, please wait")
)

// Analyzer is the remote side of a query.
type Analyzer interface {
	Analyze(ctx context.Context, query string, bias *models.GeoBias) (*parser.Reply, error)
}

type QueryRequest struct {
	Context   context.Context
	SessionID string
	Query     string
	Bias      *models.GeoBias
}

type Config struct {
	IdleTimeout   time.Duration
	RatePerMinute int
	// DefaultBias supplies a position when the request carries none.
	DefaultBias func() *models.GeoBias
}

// Manager runs one worker goroutine per session. A session never has more than
// one query in flight: the store's loading flag gates Submit.
type Manager struct {
	analyzer Analyzer
	sessions *conversation.Registry
	cfg      Config

	mu      sync.Mutex
	workers map[string]*sessionWorker
}

type queryTask struct {
	req      QueryRequest
	store    *conversation.Store
	release  func()
	resultCh chan workerReturn
}

func NewManager(analyzer Analyzer, sessions *conversation.Registry, cfg Config) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Manager{
		analyzer: analyzer,
		sessions: sessions,
		cfg:      cfg,
		workers:  make(map[string]*sessionWorker),
	}
}

// Submit appends the user's message, runs the query and appends the reply. A
// blank query or a session that is still loading is rejected before anything
// is appended. Once dispatched, the query is not cancelled by req.Context; if
// the caller stops waiting the reply is still appended.
func (m *Manager) Submit(req QueryRequest) (*models.Message, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.Context == nil {
		req.Context = context.Background()
	}
	if req.Bias == nil && m.cfg.DefaultBias != nil {
		req.Bias = m.cfg.DefaultBias()
	}
	ctx := req.Context
	store := m.sessions.Get(ctx, req.SessionID)

	// Rejections leave the loading flag alone.
	if store.Loading() {
		return nil, conversation.ErrBusy
	}
	if !m.allow(req.SessionID) {
		return nil, ErrRateLimited
	}
	release, err := store.BeginQuery()
	if err != nil {
		return nil, err
	}
	userMsg, err := conversation.NewMessage(models.RoleUser, req.Query)
	if err != nil {
		release()
		return nil, err
	}
	if err := store.Append(userMsg); err != nil {
		release()
		return nil, fmt.Errorf("append user message: %w", err)
	}

	resultCh := make(chan workerReturn, 1)
	task := queryTask{req: req, store: store, release: release, resultCh: resultCh}
	if err := m.enqueue(req.SessionID, task); err != nil {
		release()
		return nil, err
	}

	select {
	case ret := <-resultCh:
		return ret.message, ret.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) enqueue(sessionID string, task queryTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.workerLocked(sessionID)
	select {
	case w.taskCh <- task:
		debugLog("[manager] queued query for session %s", sessionID)
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Manager) allow(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workerLocked(sessionID).allow()
}

// workerLocked returns the session worker, starting one if needed. m.mu must be held.
func (m *Manager) workerLocked(sessionID string) *sessionWorker {
	if w, ok := m.workers[sessionID]; ok {
		return w
	}
	w := newSessionWorker(sessionID, m.limiter())
	m.workers[sessionID] = w
	go m.runWorker(w)
	return w
}

func (m *Manager) limiter() *rate.Limiter {
	if m.cfg.RatePerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.cfg.RatePerMinute)), m.cfg.RatePerMinute)
}

func (m *Manager) runWorker(w *sessionWorker) {
	idle := time.NewTimer(m.cfg.IdleTimeout)
	defer idle.Stop()
	for {
		select {
		case <-w.stopCh:
			m.drain(w)
			debugLog("[manager] worker for session %s stopped", w.sessionID)
			return
		case task := <-w.taskCh:
			m.handleQuery(task)
			resetTimer(idle, m.cfg.IdleTimeout)
		case <-idle.C:
			m.mu.Lock()
			if len(w.taskCh) > 0 {
				m.mu.Unlock()
				idle.Reset(m.cfg.IdleTimeout)
				continue
			}
			if m.workers[w.sessionID] == w {
				delete(m.workers, w.sessionID)
			}
			m.mu.Unlock()
			debugLog("[manager] worker for session %s idle, exiting", w.sessionID)
			return
		}
	}
}

// drain finishes tasks queued before the worker was stopped, so their
// callers get an answer and their loading flags are released.
func (m *Manager) drain(w *sessionWorker) {
	for {
		select {
		case task := <-w.taskCh:
			m.handleQuery(task)
		default:
			return
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// handleQuery lowers the loading flag before answering so a caller that
// submits again right after Submit returns is not refused as busy.
func (m *Manager) handleQuery(task queryTask) {
	ret := m.runQuery(task)
	task.release()
	task.resultCh <- ret
}

func (m *Manager) runQuery(task queryTask) workerReturn {
	req := task.req
	ctx := context.WithoutCancel(req.Context)

	var reply *models.Message
	result, err := m.analyzer.Analyze(ctx, req.Query, req.Bias)
	if err != nil {
		log.Printf("query for session %s failed: %v", req.SessionID, err)
		reply, err = newAssistantMessage(FailureNotice, nil)
	} else {
		reply, err = newAssistantMessage(result.Text, result)
	}
	if err != nil {
		return workerReturn{err: err}
	}
	if err := task.store.Append(*reply); err != nil {
		return workerReturn{err: fmt.Errorf("append reply: %w", err)}
	}
	debugLog("[manager] session %s answered", req.SessionID)
	return workerReturn{message: reply}
}

func newAssistantMessage(text string, reply *parser.Reply) (*models.Message, error) {
	msg, err := conversation.NewMessage(models.RoleAssistant, text)
	if err != nil {
		return nil, err
	}
	if reply != nil {
		msg.Result = reply.Result
		msg.MapLinks = reply.MapLinks
	}
	return &msg, nil
}

// Purge stops the session's worker and ends the session.
func (m *Manager) Purge(ctx context.Context, sessionID string) {
	m.mu.Lock()
	if w, ok := m.workers[sessionID]; ok {
		delete(m.workers, sessionID)
		w.stop()
	}
	m.mu.Unlock()
	m.sessions.Drop(ctx, sessionID)
}

// Shutdown stops every worker. Queries already running finish first.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, w := range m.workers {
		w.stop()
		delete(m.workers, id)
	}
}
