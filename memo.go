package pickle

import "fmt"

// memo holds values put aside by PUT-family opcodes for later GET.
//
// It stores the value itself: containers are pointer-like, so whatever is
// appended to a memoized container later is visible through the memo too.
type memo map[int]any

func (m memo) put(id int, v any) {
	m[id] = v
}

func (m memo) get(id int) (any, error) {
	v, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMemoReference, id)
	}
	return v, nil
}

// next is the id MEMOIZE assigns.
func (m memo) next() int {
	return len(m)
}

func (m memo) reset() {
	clear(m)
}
