package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalRoundTrip(t *testing.T) {
	e := New()
	e.Set("msg", "hi")
	e.Set("n", float64(42))
	e.SetMeta("source", "test")

	raw, err := e.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"msg":"hi","n":42},"metadata":{"source":"test"}}`, string(raw))

	back, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.True(t, e.Equal(back))
}

func TestUnmarshalNilMaps(t *testing.T) {
	e, err := Unmarshal([]byte(`{}`))
	require.NoError(t, err)
	require.NotNil(t, e.Data)
	require.NotNil(t, e.Metadata)

	e.Set("k", "v")
	v, ok := e.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCloneIsIndependent(t *testing.T) {
	e := NewWithData(map[string]any{
		"nested": map[string]any{"k": "v"},
	})
	e.SetMeta("m", "1")

	clone := e.Clone()
	require.True(t, e.Equal(clone))

	clone.Set("new", "x")
	clone.Data["nested"].(map[string]any)["k"] = "changed"

	_, ok := e.Get("new")
	assert.False(t, ok)
	assert.Equal(t, "v", e.Data["nested"].(map[string]any)["k"])
}

func TestEqualStructural(t *testing.T) {
	a := NewWithData(map[string]any{"x": float64(1)})
	b := NewWithData(map[string]any{"x": float64(1)})
	c := NewWithData(map[string]any{"x": float64(2)})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	var nilEnv *Envelope
	assert.True(t, nilEnv.Equal(nil))
}

func TestCloneNil(t *testing.T) {
	var e *Envelope
	assert.Nil(t, e.Clone())
}
