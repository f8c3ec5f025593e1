// Package notify delivers human-readable outcome messages to whoever is
// watching a session. Delivery is best effort and never blocks the caller.
package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink receives outcome messages. Notify must not block.
type Sink interface {
	Notify(msg string)
}

// Func adapts a function to a Sink.
type Func func(msg string)

func (f Func) Notify(msg string) { f(msg) }

// Discard drops every message.
var Discard Sink = Func(func(string) {})

// Multi fans a message out to several sinks.
type Multi []Sink

func (m Multi) Notify(msg string) {
	for _, s := range m {
		s.Notify(msg)
	}
}

// Logger writes messages to a structured logger at info level.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) Notify(msg string) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification", "message", msg)
}

// Async hands messages to a wrapped sink on its own goroutine. When the
// buffer is full the message is dropped.
type Async struct {
	next    Sink
	ch      chan string
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewAsync(next Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	a := &Async{
		next: next,
		ch:   make(chan string, buffer),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for msg := range a.ch {
		a.next.Notify(msg)
	}
}

func (a *Async) Notify(msg string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- msg:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of messages lost to a full buffer or a closed sink.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting messages and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
	})
	<-a.done
}
