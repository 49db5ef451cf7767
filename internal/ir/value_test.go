package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectJSONRoundTrip(t *testing.T) {
	obj := Obj(
		O("name", String("Flux Capacitor")),
		O("price", Int(666)),
		O("tags", Array{String("a"), Bool(true)}),
		O("dims", Obj(O("w", Int(3)))),
	)

	data, err := json.Marshal(obj)
	require.NoError(t, err)

	var decoded Object
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, Equal(obj, decoded))
}

func TestObjectUnmarshalRejectsFloat(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`{"price": 1.5}`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestObjectUnmarshalLargeInt(t *testing.T) {
	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`{"n": 9007199254740993}`), &obj))
	assert.Equal(t, Int(9007199254740993), obj["n"])
}

func TestParseObject(t *testing.T) {
	obj, err := ParseObject([]byte(`{"name":"Hoverboard","price":59000}`))
	require.NoError(t, err)
	assert.Equal(t, String("Hoverboard"), obj["name"])
	assert.Equal(t, Int(59000), obj["price"])

	_, err = ParseObject([]byte(`{"price":null}`))
	assert.Error(t, err)

	_, err = ParseObject([]byte(`{"price":2e3}`))
	assert.Error(t, err)

	_, err = ParseObject([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{"a": 1, "b": []any{"x", false}})
	require.NoError(t, err)
	assert.True(t, Equal(Obj(O("a", Int(1)), O("b", Array{String("x"), Bool(false)})), v))

	// Whole floats come from YAML/JSON decoders without UseNumber.
	v, err = FromAny(float64(2_000_000))
	require.NoError(t, err)
	assert.Equal(t, Int(2_000_000), v)

	_, err = FromAny(2.5)
	assert.Error(t, err)
}

func TestToAny(t *testing.T) {
	obj := Obj(O("name", String("x")), O("n", Int(2)), O("l", Array{Bool(true)}))
	assert.Equal(t, map[string]any{"name": "x", "n": int64(2), "l": []any{true}}, ToAny(obj))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(1), Int(1)))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(Obj(O("a", Int(1))), Obj(O("a", Int(1)), O("b", Int(2)))))
	assert.False(t, Equal(Array{Int(1)}, Array{Int(2)}))
	assert.True(t, Equal(Null{}, Null{}))
}

func TestClone(t *testing.T) {
	orig := Obj(O("nested", Obj(O("a", Int(1)))))
	cp := orig.Clone()
	cp["nested"].(Object)["a"] = Int(2)
	assert.Equal(t, Int(1), orig["nested"].(Object)["a"])
}
