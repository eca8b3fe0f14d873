package persist

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kisielk/pickle"
)

// ErrCycle is returned when resolving an oid needs the oid itself.
var ErrCycle = errors.New("persist: persistent reference cycle")

// Resolver returns a PersistentLoad that fetches referenced pickles from s
// and decodes them with cfg.
//
// References inside the fetched pickles resolve through the same resolver.
// Each oid is decoded once, so every reference to it yields the same
// object.
func (s *Store) Resolver(ctx context.Context, cfg *pickle.DecoderConfig) func(ref pickle.Ref) (any, error) {
	r := &resolver{
		ctx:     ctx,
		store:   s,
		cache:   make(map[string]any),
		loading: make(map[string]bool),
	}
	var base pickle.DecoderConfig
	if cfg != nil {
		base = *cfg
	}
	r.log = base.Logger
	if r.log == nil {
		r.log = pickle.Logger()
	}
	base.PersistentLoad = r.load
	r.cfg = &base
	return r.load
}

type resolver struct {
	ctx     context.Context
	store   *Store
	cfg     *pickle.DecoderConfig
	log     *zap.Logger
	cache   map[string]any
	loading map[string]bool
}

func (r *resolver) load(ref pickle.Ref) (any, error) {
	oid, err := OID(ref)
	if err != nil {
		return nil, err
	}
	if v, ok := r.cache[oid]; ok {
		return v, nil
	}
	if r.loading[oid] {
		return nil, fmt.Errorf("%w: %q", ErrCycle, oid)
	}

	data, err := r.store.Get(r.ctx, oid)
	if err != nil {
		return nil, err
	}

	r.loading[oid] = true
	defer delete(r.loading, oid)

	v, err := pickle.UnpickleWithConfig(data, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("persist: decode %q: %w", oid, err)
	}
	r.log.Debug("resolved persistent reference", zap.String("oid", oid), zap.Int("size", len(data)))
	r.cache[oid] = v
	return v, nil
}

// OID extracts the store key from a persistent reference.
//
// The pid may be a string or bytes, or a tuple holding one next to its
// class, as ZODB writes them.
func OID(ref pickle.Ref) (string, error) {
	switch pid := ref.Pid.(type) {
	case string:
		return pid, nil
	case pickle.Bytes:
		return string(pid), nil
	case pickle.Tuple:
		for _, x := range pid {
			switch x := x.(type) {
			case string:
				return x, nil
			case pickle.Bytes:
				return string(x), nil
			}
		}
	}
	return "", fmt.Errorf("persist: no oid in persistent id %s", pickle.Repr(ref.Pid))
}
