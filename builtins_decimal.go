package pickle

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

func registerDecimal(r *Registry) {
	r.Register("decimal", "Decimal", newDecimal)
	r.Register("cdecimal", "Decimal", newDecimal)
}

// decimal.Decimal(text) -> *apd.Decimal
func newDecimal(args Tuple) (any, error) {
	if err := nargs(args, 1, 1); err != nil {
		return nil, err
	}
	text, err := AsString(args[0])
	if err != nil {
		return nil, err
	}
	d, _, err := apd.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("decimal %q: %w", text, err)
	}
	return d, nil
}
