// Package loop provides the single-threaded event loops the kit engine mutates its state on.
package loop

import (
	"log/slog"
	"sync"

	"github.com/df-mc/dragonfly/server/world"
)

// Loop runs functions one at a time on a single goroutine. Exec never blocks the caller: it queues f and
// returns a channel closed once f has run.
type Loop interface {
	Exec(f func()) <-chan struct{}
}

// World is a Loop running functions inside transactions of a dragonfly world.
type World struct {
	w *world.World
}

// NewWorld ...
func NewWorld(w *world.World) World {
	return World{w: w}
}

// Exec ...
func (l World) Exec(f func()) <-chan struct{} {
	return l.w.Exec(func(*world.Tx) {
		f()
	})
}

// Serial is a Loop backed by its own goroutine. It is used where no world is available, such as in
// tests and headless tools.
type Serial struct {
	log *slog.Logger

	mu     sync.Mutex
	queue  []task
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// task is a queued function and the channel closed once it has run.
type task struct {
	f    func()
	done chan struct{}
}

// NewSerial starts a Serial loop.
func NewSerial(log *slog.Logger) *Serial {
	s := &Serial{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// Exec ...
func (s *Serial) Exec(f func()) <-chan struct{} {
	t := task{f: f, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debug("dropped function queued on closed loop")
		close(t.done)
		return t.done
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return t.done
}

// Close runs the functions already queued and stops the loop. Functions queued afterwards are dropped.
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}

// run executes queued functions until the loop is closed and drained.
func (s *Serial) run() {
	defer close(s.done)
	for range s.wake {
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				closed := s.closed
				s.mu.Unlock()
				if closed {
					return
				}
				break
			}
			t := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.exec(t)
		}
	}
}

// exec runs a single task, recovering from panics so that one faulty function does not stop the loop.
func (s *Serial) exec(t task) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("loop function panicked", "panic", r)
		}
	}()
	t.f()
}
