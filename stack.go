package pickle

// stack is the decoder's operand stack together with the mark stack.
//
// Every mark records the depth of items at the time MARK was seen. Items
// below the most recent mark are out of reach of pop and peek until the
// mark is closed.
type stack struct {
	items []any
	marks []int
}

// floor is the lowest index reachable by pop.
func (s *stack) floor() int {
	if n := len(s.marks); n > 0 {
		return s.marks[n-1]
	}
	return 0
}

func (s *stack) push(v any) {
	s.items = append(s.items, v)
}

func (s *stack) pop() (any, error) {
	n := len(s.items)
	if n <= s.floor() {
		return nil, ErrStackUnderflow
	}
	v := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	return v, nil
}

func (s *stack) peek() (any, error) {
	n := len(s.items)
	if n <= s.floor() {
		return nil, ErrStackUnderflow
	}
	return s.items[n-1], nil
}

// replaceTop overwrites the stack top. The caller must have checked that
// the stack is not empty above the current mark.
func (s *stack) replaceTop(v any) {
	s.items[len(s.items)-1] = v
}

// popN pops the n topmost items and returns them in stack order.
func (s *stack) popN(n int) ([]any, error) {
	k := len(s.items) - n
	if k < s.floor() {
		return nil, ErrStackUnderflow
	}
	v := append([]any(nil), s.items[k:]...)
	clear(s.items[k:])
	s.items = s.items[:k]
	return v, nil
}

func (s *stack) mark() {
	s.marks = append(s.marks, len(s.items))
}

// popMark removes the most recent mark and returns the depth it recorded.
func (s *stack) popMark() (int, error) {
	n := len(s.marks)
	if n == 0 {
		return 0, ErrUnmatchedMark
	}
	k := s.marks[n-1]
	s.marks = s.marks[:n-1]
	return k, nil
}

// popToMark drains the items pushed since the most recent mark, in order,
// and then removes the mark.
func (s *stack) popToMark() ([]any, error) {
	k, err := s.popMark()
	if err != nil {
		return nil, err
	}
	v := append([]any(nil), s.items[k:]...)
	clear(s.items[k:])
	s.items = s.items[:k]
	return v, nil
}

// depth returns the number of items on the stack, marks ignored.
func (s *stack) depth() int {
	return len(s.items)
}

func (s *stack) reset() {
	clear(s.items)
	s.items = s.items[:0]
	s.marks = s.marks[:0]
}
