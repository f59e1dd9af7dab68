package scheduler

import (
	"context"
	"sync"
	"time"

	"Raksha/pkg/logger"

	"go.uber.org/zap"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Scheduler runs in-process periodic jobs. Each registration returns its own
// stop function; Stop ends every job and waits for running ones.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	return NewWithContext(context.Background())
}

func NewWithContext(parent context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Every runs job on each tick of d until the returned stop is called.
func (s *Scheduler) Every(name string, d time.Duration, job Job) (stop func()) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				runSafe(ctx, name, job)
			}
		}
	}()
	return cancel
}

func (s *Scheduler) OnceAfter(name string, d time.Duration, job Job) (stop func()) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			runSafe(ctx, name, job)
		}
	}()
	return cancel
}

func runSafe(ctx context.Context, name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduled job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()
	job.Run(ctx)
}
