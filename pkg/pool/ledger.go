//go:build !pooldebug

package pool

// ledger is a no-op unless the pooldebug build tag is set.
type ledger[T comparable] struct{}

func newLedger[T comparable]() ledger[T] { return ledger[T]{} }

func (ledger[T]) checkout(T) {}

func (ledger[T]) returned(T) {}

func (ledger[T]) describe(T) string { return "" }
