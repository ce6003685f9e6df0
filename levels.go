package radixscan

import (
	"errors"
	"fmt"

	"github.com/tamirms/radixscan/device"
)

// level is one step of the recursive scan: data[0:n] is scanned block-wise
// and the per-block totals land in sums, which becomes the next level's
// data.
type level[T Number] struct {
	data   *device.Buffer[T]
	n      int
	blocks int
	sums   *device.Buffer[T]
}

// levelStack holds the levels whose corrections are still pending. Its
// capacity is computed from the input length before any allocation, so a
// scan never grows it.
type levelStack[T Number] struct {
	levels []level[T]
}

func newLevelStack[T Number](capacity int) *levelStack[T] {
	return &levelStack[T]{levels: make([]level[T], 0, capacity)}
}

func (st *levelStack[T]) push(l level[T]) error {
	if len(st.levels) == cap(st.levels) {
		return fmt.Errorf("level stack overflow at depth %d", len(st.levels))
	}
	st.levels = append(st.levels, l)
	return nil
}

func (st *levelStack[T]) depth() int {
	return len(st.levels)
}

func (st *levelStack[T]) top() level[T] {
	return st.levels[len(st.levels)-1]
}

// pop removes the innermost level and frees its sums buffer.
func (st *levelStack[T]) pop() error {
	l := st.top()
	st.levels = st.levels[:len(st.levels)-1]
	return l.sums.Close()
}

// release frees every remaining level.
func (st *levelStack[T]) release() error {
	var errs []error
	for st.depth() > 0 {
		errs = append(errs, st.pop())
	}
	return errors.Join(errs...)
}
