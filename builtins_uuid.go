package pickle

import (
	"fmt"

	"github.com/google/uuid"
)

// UUID is a decoded uuid.UUID instance.
//
// Python pickles UUID as an empty instance plus {'int': n} state.
type UUID struct {
	uuid.UUID
}

func registerUUID(r *Registry) {
	r.Register("uuid", "UUID", newUUID)
}

// UUID() or UUID(hex)
func newUUID(args Tuple) (any, error) {
	if err := nargs(args, 0, 1); err != nil {
		return nil, err
	}
	u := &UUID{}
	if len(args) == 0 {
		return u, nil
	}
	text, err := AsString(args[0])
	if err != nil {
		return nil, err
	}
	u.UUID, err = uuid.Parse(text)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetState restores the UUID from its pickled state.
func (u *UUID) SetState(state any) error {
	d, ok := state.(Dict)
	if !ok {
		// protocol 0 and 1 send (None, {'int': n}) as state
		if t, isTuple := state.(Tuple); isTuple && len(t) == 2 {
			if d, ok = t[1].(Dict); !ok {
				d, ok = t[0].(Dict)
			}
		}
	}
	if !ok {
		return fmt.Errorf("uuid state: want dict, got %T", state)
	}
	n, err := AsBigInt(d.Get("int"))
	if err != nil {
		return fmt.Errorf("uuid state: int: %w", err)
	}
	if n.Sign() < 0 || n.BitLen() > 128 {
		return fmt.Errorf("uuid state: int %d out of range", n)
	}
	n.FillBytes(u.UUID[:])
	return nil
}
