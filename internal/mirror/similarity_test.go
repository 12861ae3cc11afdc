package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorSimilarityRanksByDistance(t *testing.T) {
	m := newTestMirror(t, warehouseDump)
	ctx := context.Background()
	require.True(t, m.SyncFromDump(ctx, false))

	rs, err := m.VectorSimilarity(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"product_name", "brand_name"}, rs.Columns)
	require.Equal(t, 2, rs.Len())

	// [0,1] is distance 0, [1,0] is distance sqrt(2).
	assert.Equal(t, []any{"Widget Pro", "Acme"}, rs.Rows[0])
	// Brand 2 has no consumer name, so the raw brand name is used.
	assert.Equal(t, []any{"GADGET MAX", "GLOBEX"}, rs.Rows[1])
}

func TestVectorSimilarityLimit(t *testing.T) {
	m := newTestMirror(t, warehouseDump)
	ctx := context.Background()
	require.True(t, m.SyncFromDump(ctx, false))

	rs, err := m.VectorSimilarity(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, "Widget Pro", rs.Rows[0][0])
}

func TestVectorSimilarityExcludesMismatchedDimensions(t *testing.T) {
	m := newTestMirror(t, warehouseDump)
	ctx := context.Background()
	require.True(t, m.SyncFromDump(ctx, false))

	// Three-dimensional query against two-dimensional embeddings.
	rs, err := m.VectorSimilarity(ctx, []float32{0, 1, 0}, 5)
	require.NoError(t, err)
	assert.True(t, rs.Empty())
}

func TestVectorSimilarityEmptyQuery(t *testing.T) {
	m := newTestMirror(t, warehouseDump)
	ctx := context.Background()
	require.True(t, m.SyncFromDump(ctx, false))

	_, err := m.VectorSimilarity(ctx, nil, 5)
	assert.Error(t, err)
}

func TestParseEmbedding(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []float32
		ok    bool
	}{
		{"pgvector text", "[0.5,1.5]", []float32{0.5, 1.5}, true},
		{"json array bytes", []byte("[1, 2, 3]"), []float32{1, 2, 3}, true},
		{"comma separated", "0.25, 0.75", []float32{0.25, 0.75}, true},
		{"garbage", "not a vector", nil, false},
		{"empty string", "", nil, false},
		{"nil", nil, nil, false},
		{"empty brackets", "[]", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseEmbedding(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestEuclideanDistance(t *testing.T) {
	assert.InDelta(t, 0, euclideanDistance([]float32{0, 1}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 1.4142135, euclideanDistance([]float32{0, 1}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 5, euclideanDistance([]float32{0, 0}, []float32{3, 4}), 1e-9)
}
