package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Pool runs submitted tasks on a fixed number of goroutines. It is used for
// sends that must not block the caller, such as chat command replies.

var (
	ErrNilTask    = errors.New("nil task")
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

type Pool struct {
	wg      sync.WaitGroup
	jobs    chan Task
	quit    chan struct{}
	stopped atomic.Bool
	n       int
	log     *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Pool{jobs: make(chan Task, workers*4), quit: make(chan struct{}), n: workers, log: logger}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					if err := task(ctx); err != nil {
						p.log.Warn().Err(err).Int("worker", id).Msg("task failed")
					}
				}
			}
		}(i)
	}
}

// Stop signals the workers and waits for in-flight tasks. Queued tasks that
// have not started are dropped.
func (p *Pool) Stop() {
	if p.stopped.Swap(true) {
		return
	}
	close(p.quit)
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	if p.stopped.Load() {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// drop when saturated rather than block the sync loop
		return ErrQueueFull
	}
}
