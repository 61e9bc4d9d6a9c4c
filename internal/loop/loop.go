// Package loop provides a single goroutine event loop. Callbacks posted to a
// Loop run one at a time in post order, which gives storage callbacks the
// cooperative scheduling of a browser-style event loop.
package loop

import (
	"sync"

	"github.com/brettbedarf/entryfs/internal/util"
)

// Loop runs posted tasks sequentially on its own goroutine.
// The zero value is not usable; create one with [New].
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	done    chan struct{}
	started sync.Once
}

// New creates a Loop. The worker goroutine starts lazily on first Post.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Post queues fn to run after every previously posted task.
// Returns false if the loop is closed and fn was dropped.
func (l *Loop) Post(fn func()) bool {
	l.started.Do(func() { go l.run() })

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return true
}

// Close stops accepting tasks, lets queued tasks drain and waits for the
// worker to exit. Safe to call more than once. Must not be called from a
// posted task.
func (l *Loop) Close() {
	l.started.Do(func() { go l.run() })

	l.mu.Lock()
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.done
}

func (l *Loop) run() {
	logger := util.GetLogger("Loop")
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Interface("panic", r).Msg("Loop task panicked")
				}
			}()
			task()
		}()
	}
}
