package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task removes stale state and reports how many entries it dropped.
type Task struct {
	Name string
	Run  func() (int64, error)
}

// Sweeper runs cleanup tasks on a fixed interval.
type Sweeper struct {
	mu       sync.RWMutex
	tasks    []Task
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(interval time.Duration, logger *slog.Logger, tasks ...Task) *Sweeper {
	return &Sweeper{
		tasks:    tasks,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sweep loop. The first sweep runs immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.Sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Sweep runs every task once. A failing task does not stop the others.
func (s *Sweeper) Sweep() {
	for _, t := range s.tasks {
		n, err := t.Run()
		if err != nil {
			s.logger.Error("sweep failed", "task", t.Name, "error", err)
			continue
		}
		if n > 0 {
			s.logger.Info("swept", "task", t.Name, "removed", n)
		}
	}
}

// Counted adapts a cleanup func that cannot fail.
func Counted(name string, fn func() int) Task {
	return Task{Name: name, Run: func() (int64, error) { return int64(fn()), nil }}
}
