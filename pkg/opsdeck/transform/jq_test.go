package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJqFilterExtractsField(t *testing.T) {
	filter, err := JqFilter(".hostname", nil)
	require.NoError(t, err)

	result, keep := filter("server", map[string]any{"hostname": "atlas", "cpu_pct": 12.5})
	assert.True(t, keep)
	assert.Equal(t, "atlas", result)
}

func TestJqFilterDropsOnNoResults(t *testing.T) {
	filter, err := JqFilter(`select(.cpu_pct > 50)`, nil)
	require.NoError(t, err)

	result, keep := filter("server", map[string]any{"cpu_pct": 12.5})
	assert.False(t, keep)
	assert.Nil(t, result)

	result, keep = filter("server", map[string]any{"cpu_pct": 93.0})
	assert.True(t, keep)
	assert.Equal(t, map[string]any{"cpu_pct": 93.0}, result)
}

func TestJqFilterCollectsMultipleResults(t *testing.T) {
	filter, err := JqFilter(`.bots[].name`, nil)
	require.NoError(t, err)

	result, keep := filter("bots", map[string]any{
		"bots": []any{
			map[string]any{"name": "greeter"},
			map[string]any{"name": "janitor"},
		},
	})
	assert.True(t, keep)
	assert.Equal(t, []any{"greeter", "janitor"}, result)
}

func TestJqFilterExposesTopicVariable(t *testing.T) {
	filter, err := JqFilter(`{topic: $topic, value: .}`, nil)
	require.NoError(t, err)

	result, keep := filter("dreams", 42)
	assert.True(t, keep)
	assert.Equal(t, map[string]any{"topic": "dreams", "value": 42}, result)
}

func TestJqFilterRoundTripsStructs(t *testing.T) {
	type botState struct {
		Name    string `json:"name"`
		Running bool   `json:"running"`
	}

	filter, err := JqFilter(".name", nil)
	require.NoError(t, err)

	result, keep := filter("bots", botState{Name: "greeter", Running: true})
	assert.True(t, keep)
	assert.Equal(t, "greeter", result)
}

func TestJqFilterParsesJSONStrings(t *testing.T) {
	filter, err := JqFilter(".hostname", nil)
	require.NoError(t, err)

	result, keep := filter("server", `{"hostname":"atlas"}`)
	assert.True(t, keep)
	assert.Equal(t, "atlas", result)
}

func TestJqFilterRejectsInvalidQuery(t *testing.T) {
	_, err := JqFilter(`.foo | | bar`, nil)
	assert.Error(t, err)
}

func TestJqFilterPassesThroughOnExecutionError(t *testing.T) {
	filter, err := JqFilter(`error("boom")`, nil)
	require.NoError(t, err)

	payload := map[string]any{"hostname": "atlas"}
	result, keep := filter("server", payload)
	assert.True(t, keep)
	assert.Equal(t, payload, result)
}
