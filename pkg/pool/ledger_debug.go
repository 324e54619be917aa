//go:build pooldebug

package pool

import (
	"fmt"
	"runtime/debug"
	"time"
)

// callLog records where and when an object changed hands.
type callLog struct {
	seq   uint64
	at    time.Time
	stack string
}

// ledger keeps the last checkout and return of every object so misuse errors can say where the
// object was last seen.
type ledger[T comparable] struct {
	seq      *uint64
	requests map[T]callLog
	returns  map[T]callLog
}

func newLedger[T comparable]() ledger[T] {
	var seq uint64
	return ledger[T]{
		seq:      &seq,
		requests: make(map[T]callLog),
		returns:  make(map[T]callLog),
	}
}

func (l ledger[T]) next() callLog {
	*l.seq++
	return callLog{seq: *l.seq, at: time.Now(), stack: string(debug.Stack())}
}

func (l ledger[T]) checkout(obj T) {
	l.requests[obj] = l.next()
	delete(l.returns, obj)
}

func (l ledger[T]) returned(obj T) {
	delete(l.requests, obj)
	l.returns[obj] = l.next()
}

func (l ledger[T]) describe(obj T) string {
	if log, ok := l.returns[obj]; ok {
		return fmt.Sprintf(": already returned (call %d at %s)\n%s", log.seq, log.at.Format(time.RFC3339Nano), log.stack)
	}
	return ": never checked out"
}
