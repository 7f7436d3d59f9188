package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsOrderIndependent(t *testing.T) {
	a := map[string]any{}
	a["term"] = "tv"
	a["max"] = 10

	b := map[string]any{}
	b["max"] = 10
	b["term"] = "tv"

	ka, err := Key(QuerySearchTerm, a)
	require.NoError(t, err)
	kb, err := Key(QuerySearchTerm, b)
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
	assert.Len(t, ka, 32)
}

func TestKeyDistinguishesInputs(t *testing.T) {
	base, err := Key(QuerySearchTerm, map[string]any{"term": "tv", "max": 10})
	require.NoError(t, err)

	tests := []struct {
		name      string
		queryType string
		params    map[string]any
	}{
		{name: "different query type", queryType: QuerySearchCategory, params: map[string]any{"term": "tv", "max": 10}},
		{name: "different value", queryType: QuerySearchTerm, params: map[string]any{"term": "tv", "max": 20}},
		{name: "extra key", queryType: QuerySearchTerm, params: map[string]any{"term": "tv", "max": 10, "page": 2}},
		{name: "no params", queryType: QuerySearchTerm, params: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := Key(tt.queryType, tt.params)
			require.NoError(t, err)
			assert.NotEqual(t, base, k)
		})
	}
}

func TestKeyNestedParamsAreSorted(t *testing.T) {
	k1, err := Key(QuerySearchOffers, map[string]any{"filter": map[string]any{"b": 1, "a": 2}})
	require.NoError(t, err)
	k2, err := Key(QuerySearchOffers, map[string]any{"filter": map[string]any{"a": 2, "b": 1}})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestKeyRejectsUnencodableParams(t *testing.T) {
	_, err := Key(QuerySearchTerm, map[string]any{"fn": func() {}})
	assert.Error(t, err)
}
