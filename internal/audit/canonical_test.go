package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableJSONSortsKeysAtEveryDepth(t *testing.T) {
	a, err := StableJSON(map[string]any{"b": 1, "a": map[string]any{"z": true, "y": []any{3, "x"}}})
	require.NoError(t, err)
	b, err := StableJSON(map[string]any{"a": map[string]any{"y": []any{3, "x"}, "z": true}, "b": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":{"y":[3,"x"],"z":true},"b":1}`, a)
}

func TestStableJSONStructsAndLargeNumbers(t *testing.T) {
	type payload struct {
		Zeta   int64  `json:"zeta"`
		Alpha  string `json:"alpha"`
		Amount int64  `json:"amount"`
	}
	got, err := StableJSON(payload{Zeta: 1, Alpha: "x", Amount: 9007199254740993})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","amount":9007199254740993,"zeta":1}`, got)
}

func TestStableOrNil(t *testing.T) {
	got, err := stableOrNil(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	var empty map[string]any
	got, err = stableOrNil(empty)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = stableOrNil(map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"k":"v"}`, *got)
}
