// Package eventloop provides the single-threaded task queue a window context runs on.
//
// Every task posted to a Loop runs to completion before the next one starts.
// Timer callbacks and inbound messages are tasks like any other; there is no
// parallelism inside one loop.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrAlreadyRunning = errors.New("eventloop: already running")

type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running atomic.Bool
	done    atomic.Uint64
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues task. It never blocks and may be called from any goroutine.
func (l *Loop) Post(task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Running reports whether Run is currently driving the loop.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Processed returns the number of tasks run so far.
func (l *Loop) Processed() uint64 {
	return l.done.Load()
}

// Run executes tasks on the calling goroutine until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)
	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			l.run(task)
			if ctx.Err() != nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Drain runs queued tasks synchronously, including tasks they post, until the
// queue is empty. It returns the number of tasks run. Drain must not be used
// while Run is active.
func (l *Loop) Drain() int {
	n := 0
	for {
		task, ok := l.next()
		if !ok {
			return n
		}
		l.run(task)
		n++
	}
}

// Every posts fn to the loop every d until cancel is called. fn is never invoked
// synchronously. Ticks already queued when cancel is called still run.
func (l *Loop) Every(d time.Duration, fn func()) (cancel func()) {
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				l.Post(fn)
			}
		}
	}()
	return func() {
		once.Do(func() { close(stop) })
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("eventloop task panicked")
		}
	}()
	task()
	l.done.Add(1)
}
