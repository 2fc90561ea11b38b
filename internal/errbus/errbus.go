package errbus

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// Entry is a single captured failure, shaped the way API responses report it.
type Entry struct {
	TS    string `json:"ts"`
	Where string `json:"where"`
	Msg   string `json:"msg"`
	Stack string `json:"stack,omitempty"`
}

// Bus accumulates non-fatal errors during a request so callers can report
// partial failure instead of aborting the whole batch.
type Bus struct {
	mu      sync.Mutex
	entries []Entry
}

func New() *Bus {
	return &Bus{}
}

// Push records an error under a location tag. Nil errors are ignored.
func (b *Bus) Push(where string, err error) {
	if err == nil {
		return
	}
	b.push(where, err.Error(), "")
}

// Pushf records a formatted message without an underlying error value.
func (b *Bus) Pushf(where, format string, args ...interface{}) {
	b.push(where, fmt.Sprintf(format, args...), "")
}

// PushPanic records a recovered panic together with its stack trace.
func (b *Bus) PushPanic(where string, recovered interface{}) {
	b.push(where, fmt.Sprintf("panic: %v", recovered), string(debug.Stack()))
}

func (b *Bus) push(where, msg, stack string) {
	entry := Entry{
		TS:    time.Now().UTC().Format(time.RFC3339),
		Where: where,
		Msg:   msg,
		Stack: stack,
	}
	b.mu.Lock()
	b.entries = append(b.entries, entry)
	b.mu.Unlock()
	log.Printf("[%s] %s", where, msg)
}

// Entries returns the captured errors in push order. Never nil, so JSON
// encodes it as [] rather than null.
func (b *Bus) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of captured errors.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
