package canonjson

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeys(t *testing.T) {
	got, err := MarshalString(map[string]any{"b": 1, "a": true, "c": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"a":true,"b":1,"c":null}`, got)
}

func TestMarshal_Nested(t *testing.T) {
	got, err := MarshalString(map[string]any{
		"tags": []any{"x", int64(2), 2.5},
		"meta": map[string]any{"z": "last", "a": "first"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"meta":{"a":"first","z":"last"},"tags":["x",2,2.5]}`, got)
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalString("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, got)
}

func TestMarshal_NFCNormalizes(t *testing.T) {
	got, err := MarshalString("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", got)
}

func TestMarshal_UTF16KeyOrder(t *testing.T) {
	// U+10000 encodes as surrogates 0xD800.., which sort before U+FFFD in UTF-16.
	got, err := MarshalString(map[string]any{"\uFFFD": 1, "\U00010000": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uFFFD\":1}", got)
}

func TestMarshal_Floats(t *testing.T) {
	got, err := MarshalString([]any{1.0, 0.1, 1e21, float32(0.5)})
	require.NoError(t, err)
	assert.Equal(t, `[1,0.1,1e+21,0.5]`, got)
}

func TestMarshal_TypedValues(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	got, err := MarshalString(map[string]any{
		"p":    point{X: 1, Y: 2},
		"ids":  []int{3, 1},
		"when": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ids":[3,1],"p":{"x":1,"y":2},"when":"2024-01-02T03:04:05Z"}`, got)
}

func TestParse_NumbersNormalized(t *testing.T) {
	v, err := ParseString(`{"a":1,"b":2.5,"c":[10,"x"],"d":null}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": int64(1),
		"b": 2.5,
		"c": []any{int64(10), "x"},
		"d": nil,
	}, v)
}

func TestParse_RejectsInvalid(t *testing.T) {
	_, err := ParseString(`{"a":`)
	assert.Error(t, err)

	_, err = ParseString(`{} {}`)
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	in := map[string]any{"a": int64(1), "nested": map[string]any{"ok": true}}
	text, err := MarshalString(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"nested":{"ok":true}}`, text)

	out, err := ParseString(text)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
