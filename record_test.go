package pickle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAttrs(t *testing.T) {
	cls := Class{Module: "shop", Name: "Item"}
	r := NewRecord(cls)
	assert.Equal(t, "shop.Item", r.ClassName())
	assert.Nil(t, r.Args())

	v, ok := r.Attr(AttrClass)
	require.True(t, ok)
	assert.Equal(t, "shop.Item", v)

	r.SetAttr(AttrArgs, Tuple{int64(1)})
	r.SetAttr("name", "pen")
	assert.Equal(t, Tuple{int64(1)}, r.Args())

	// Attrs is a copy
	attrs := r.Attrs()
	attrs["name"] = "pencil"
	v, _ = r.Attr("name")
	assert.Equal(t, "pen", v)

	_, ok = r.Attr("price")
	assert.False(t, ok)
}

func TestRecordSetState(t *testing.T) {
	r := NewRecord(Class{Module: "shop", Name: "Item"})

	require.NoError(t, r.SetState(NewDictWithData("name", "pen")))
	require.NoError(t, r.SetState(Tuple{None{}, NewDictWithData("slot", int64(1))}))
	require.NoError(t, r.SetState(Tuple{NewDictWithData("a", int64(2)), None{}}))
	assert.Equal(t, map[string]any{
		AttrClass: "shop.Item",
		"name":    "pen",
		"slot":    int64(1),
		"a":       int64(2),
	}, r.Attrs())

	// anything else is kept as is
	require.NoError(t, r.SetState(int64(5)))
	v, _ := r.Attr(AttrState)
	assert.Equal(t, int64(5), v)

	state := NewDictWithData(int64(1), "x")
	require.NoError(t, r.SetState(state))
	v, _ = r.Attr(AttrState)
	assert.Equal(t, state, v)
}

// instances of unknown classes decode to records.
func TestRecordDecode(t *testing.T) {
	testv := []struct {
		name  string
		input string
		attrs map[string]any
	}{
		{
			"newobj+build",
			"\x80\x02cshop\nItem\n)\x81}X\x04\x00\x00\x00nameX\x03\x00\x00\x00pensb.",
			map[string]any{"name": "pen"},
		},
		{
			"reduce with args",
			"cshop\nItem\n(I7\ntR.",
			map[string]any{AttrArgs: Tuple{int64(7)}},
		},
		{
			"obj",
			"(cshop\nItem\nS'a'\no.",
			map[string]any{AttrArgs: Tuple{"a"}},
		},
		{
			"list subclass",
			"\x80\x02cshop\nBasket\n)\x81(K\x01K\x02e.",
			map[string]any{attrItems: NewList(int64(1), int64(2))},
		},
		{
			"dict subclass",
			"\x80\x02cshop\nIndex\n)\x81(X\x01\x00\x00\x00aK\x01u.",
			map[string]any{attrDictItems: NewDictWithData("a", int64(1))},
		},
		{
			"non-dict state",
			"\x80\x02cshop\nItem\n)\x81K\x05b.",
			map[string]any{AttrState: int64(5)},
		},
		{
			"slots state",
			"\x80\x02cshop\nItem\n)\x81N}X\x01\x00\x00\x00xK\x01s\x86b.",
			map[string]any{"x": int64(1)},
		},
		{
			"newobj_ex",
			"\x80\x04\x8c\x04shop\x8c\x04Item\x93)}\x8c\x01qK\x02s\x92.",
			map[string]any{AttrKwargs: NewDictWithData("q", int64(2))},
		},
		{
			"copyreg reconstructor",
			"ccopy_reg\n_reconstructor\n(cshop\nItem\nc__builtin__\nobject\nNtR.",
			map[string]any{},
		},
	}

	for _, tt := range testv {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Unpickle([]byte(tt.input))
			require.NoError(t, err)
			r, ok := v.(*Record)
			require.True(t, ok, "%T", v)

			want := NewRecord(r.Class)
			for k, x := range tt.attrs {
				want.SetAttr(k, x)
			}
			assert.True(t, deepEqual(r, want), "have %s  want %s", Repr(r), Repr(want))
		})
	}
}

func TestRecordShared(t *testing.T) {
	// the same instance referenced twice through the memo
	v, err := Unpickle([]byte("\x80\x02cshop\nItem\n)\x81q\x00h\x00\x86."))
	require.NoError(t, err)
	pair := v.(Tuple)
	assert.Same(t, pair[0], pair[1])
}
