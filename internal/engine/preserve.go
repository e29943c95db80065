// internal/engine/preserve.go
package engine

import "github.com/xkilldash9x/sweeper-cli/internal/dom"

// PreservationRule reports whether the item at position in the current batch
// must be left untouched.
type PreservationRule func(item dom.Handle, position int) bool

// PreserveFirst keeps the first item of every batch.
func PreserveFirst(_ dom.Handle, position int) bool { return position == 0 }

// PreserveNone acts on every item.
func PreserveNone(dom.Handle, int) bool { return false }

// PreserveFirstN keeps the first n items of every batch.
func PreserveFirstN(n int) PreservationRule {
	return func(_ dom.Handle, position int) bool { return position < n }
}
