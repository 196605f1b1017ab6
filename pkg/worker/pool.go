package worker

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Pool runs detached background stage units on a bounded goroutine pool.
// Each running unit is tracked by a (job, stage) handle so the set of
// in-flight work stays observable.
type Pool struct {
	pool *ants.Pool
	log  *slog.Logger

	mu     sync.Mutex
	active map[string]string
}

func NewPool(size int, logger *slog.Logger) (*Pool, error) {
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		pool:   p,
		log:    logger.With("component", "worker_pool"),
		active: make(map[string]string),
	}, nil
}

// Submit schedules a stage unit. The task runs on a pooled goroutine;
// panics are recovered and logged so one bad unit cannot take the process
// down.
func (p *Pool) Submit(jobID, stage string, task func()) error {
	p.mu.Lock()
	p.active[jobID] = stage
	p.mu.Unlock()

	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("stage unit panicked", "job_id", jobID, "stage", stage, "panic", r)
			}
			p.mu.Lock()
			delete(p.active, jobID)
			p.mu.Unlock()
		}()
		task()
	})
	if err != nil {
		p.mu.Lock()
		delete(p.active, jobID)
		p.mu.Unlock()
		return fmt.Errorf("submit %s for job %s: %w", stage, jobID, err)
	}
	return nil
}

// Active returns a snapshot of in-flight stage units keyed by job id.
func (p *Pool) Active() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make(map[string]string, len(p.active))
	for k, v := range p.active {
		snapshot[k] = v
	}
	return snapshot
}

// Release shuts the pool down. Queued tasks are discarded.
func (p *Pool) Release() {
	p.pool.Release()
}
