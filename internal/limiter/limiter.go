package limiter

import (
    "context"
    "strings"
    "sync"
)

// Inflight caps concurrent work per key with in-process semaphores.
type Inflight struct {
    limit int
    mu    sync.Mutex
    sem   map[string]chan struct{}
}

// New returns a limiter allowing limit concurrent holders per key. limit <= 0 disables limiting.
func New(limit int) *Inflight {
    return &Inflight{limit: limit, sem: map[string]chan struct{}{}}
}

func (l *Inflight) slot(key string) chan struct{} {
    key = strings.ToLower(key)
    l.mu.Lock()
    defer l.mu.Unlock()
    ch, ok := l.sem[key]
    if !ok {
        ch = make(chan struct{}, l.limit)
        l.sem[key] = ch
    }
    return ch
}

// Allow tries to reserve a slot for key without waiting.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (l *Inflight) Allow(key string) (func(), bool) {
    if l == nil || l.limit <= 0 {
        return func() {}, true
    }
    ch := l.slot(key)
    select {
    case ch <- struct{}{}:
        return func() { <-ch }, true
    default:
        return func() {}, false
    }
}

// Acquire waits for a slot until ctx is done.
func (l *Inflight) Acquire(ctx context.Context, key string) (func(), error) {
    if l == nil || l.limit <= 0 {
        return func() {}, nil
    }
    ch := l.slot(key)
    select {
    case ch <- struct{}{}:
        return func() { <-ch }, nil
    case <-ctx.Done():
        return nil, ctx.Err()
    }
}

// InUse reports the number of held slots for key.
func (l *Inflight) InUse(key string) int {
    if l == nil || l.limit <= 0 {
        return 0
    }
    return len(l.slot(key))
}
