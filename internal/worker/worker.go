package worker

import (
	"sync"

	"golang.org/x/time/rate"

	"peasurvey/internal/models"
)

type workerReturn struct {
	message *models.Message
	err     error
}

// sessionWorker owns the task queue of one session.
type sessionWorker struct {
	sessionID string
	taskCh    chan queryTask
	stopCh    chan struct{}
	stopOnce  sync.Once
	limiter   *rate.Limiter
}

func newSessionWorker(sessionID string, limiter *rate.Limiter) *sessionWorker {
	return &sessionWorker{
		sessionID: sessionID,
		taskCh:    make(chan queryTask, queueLen),
		stopCh:    make(chan struct{}),
		limiter:   limiter,
	}
}

func (w *sessionWorker) allow() bool {
	if w.limiter == nil {
		return true
	}
	return w.limiter.Allow()
}

func (w *sessionWorker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}
