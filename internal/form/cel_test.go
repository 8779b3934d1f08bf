package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCEL(t *testing.T) {
	out, err := EvaluateCEL(`values.x * 2`, map[string]any{"x": int64(3)})
	require.NoError(t, err)
	assert.EqualValues(t, 6, out)

	out, err = EvaluateCEL(`values.name == "hi"`, map[string]any{"name": "hi"})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestEvaluateCELCompileError(t *testing.T) {
	_, err := EvaluateCEL(`values.x +`, map[string]any{"x": 1})
	require.Error(t, err)
}

func TestNewCELPopulatorStrings(t *testing.T) {
	p, err := NewCELPopulator(`values.country == "india" ? ["maharashtra", "kerala"] : []`)
	require.NoError(t, err)

	opts, err := p(map[string]any{"country": "india"})
	require.NoError(t, err)
	assert.Equal(t, []Option{
		{Value: "maharashtra", Text: "maharashtra"},
		{Value: "kerala", Text: "kerala"},
	}, opts)

	opts, err = p(map[string]any{"country": "usa"})
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestNewCELPopulatorValueTextMaps(t *testing.T) {
	p, err := NewCELPopulator(`[{"value": "in", "text": "India"}]`)
	require.NoError(t, err)

	opts, err := p(nil)
	require.NoError(t, err)
	assert.Equal(t, []Option{{Value: "in", Text: "India"}}, opts)
}

func TestNewCELPopulatorBadExpression(t *testing.T) {
	_, err := NewCELPopulator(`[1 +`)
	require.Error(t, err)
}

func TestCELPopulatorNonListResult(t *testing.T) {
	p, err := NewCELPopulator(`"not-a-list"`)
	require.NoError(t, err)

	_, err = p(nil)
	require.Error(t, err)
}
