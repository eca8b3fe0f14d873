package pickle

import "sort"

// Attribute names a Record uses for what the pickle carried besides
// instance attributes.
const (
	AttrClass  = "__class__"  // "module.name" of the instance's class
	AttrArgs   = "__args__"   // constructor arguments, a Tuple
	AttrKwargs = "__kwargs__" // constructor keyword arguments, a Dict
	AttrState  = "__state__"  // BUILD state that is not a mapping

	attrItems     = "__items__"     // APPEND targets on list subclasses
	attrDictItems = "__dictitems__" // SETITEM targets on dict subclasses
)

// Record is an instance of a class the Registry does not know.
//
// It keeps the class and a dictionary of attributes: whatever BUILD
// provided plus the entries named by the Attr* constants.
type Record struct {
	Class Class
	attrs map[string]any
}

// NewRecord returns an empty instance of cls.
func NewRecord(cls Class) *Record {
	return &Record{
		Class: cls,
		attrs: map[string]any{AttrClass: cls.String()},
	}
}

// Attr returns attribute name.
func (r *Record) Attr(name string) (any, bool) {
	v, ok := r.attrs[name]
	return v, ok
}

// SetAttr sets attribute name to v.
func (r *Record) SetAttr(name string, v any) {
	r.attrs[name] = v
}

// Attrs returns a copy of all attributes.
func (r *Record) Attrs() map[string]any {
	m := make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		m[k] = v
	}
	return m
}

// attrNames returns attribute names in sorted order.
func (r *Record) attrNames() []string {
	names := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Args returns the constructor arguments, if any.
func (r *Record) Args() Tuple {
	args, _ := r.attrs[AttrArgs].(Tuple)
	return args
}

// ClassName returns "module.name" of the record's class.
func (r *Record) ClassName() string {
	return r.Class.String()
}

// SetState merges BUILD state into the attributes.
//
// A dict with string keys is merged as is. A (dict, slots) pair merges
// both halves; either may be None. Any other state is kept under
// AttrState.
func (r *Record) SetState(state any) error {
	if t, ok := state.(Tuple); ok && len(t) == 2 && isStateDict(t[0]) && isStateDict(t[1]) {
		r.mergeState(t[0])
		r.mergeState(t[1])
		return nil
	}
	if isStateDict(state) {
		r.mergeState(state)
		return nil
	}
	r.attrs[AttrState] = state
	return nil
}

// isStateDict reports whether x can be merged into attributes.
func isStateDict(x any) bool {
	switch x := x.(type) {
	case None:
		return true
	case Dict:
		_, ok := x.StringKeys()
		return ok
	}
	return false
}

func (r *Record) mergeState(x any) {
	d, ok := x.(Dict)
	if !ok {
		return
	}
	m, _ := d.StringKeys()
	for k, v := range m {
		r.attrs[k] = v
	}
}

// listItems returns the list collecting APPENDs on the record.
func (r *Record) listItems() *List {
	l, ok := r.attrs[attrItems].(*List)
	if !ok {
		l = NewList()
		r.attrs[attrItems] = l
	}
	return l
}

// dictItems returns the dict collecting SETITEMs on the record.
func (r *Record) dictItems() Dict {
	d, ok := r.attrs[attrDictItems].(Dict)
	if !ok {
		d = NewDict()
		r.attrs[attrDictItems] = d
	}
	return d
}

func (r *Record) String() string {
	return Repr(r)
}
