//go:build integration
// +build integration

package router_test

import (
	"context"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/pgmirror/internal/log"
	"github.com/koopa0/pgmirror/internal/router"
	"github.com/koopa0/pgmirror/internal/testutil"
)

// Run with: go test -tags=integration ./internal/router -v
func TestRouterAgainstLivePrimary(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	r := router.New(tdb.Pool, nil, router.Config{MaxRetries: 3}, log.NewNop())

	err := r.Execute(ctx,
		`INSERT INTO vip_brands (brand_name, consumer_brand_name) VALUES ($1, $2)`,
		"Acme", "ACME Corp")
	require.NoError(t, err)

	err = r.Execute(ctx,
		`INSERT INTO vip_products (product_name, vip_brand_id, embedding)
		 SELECT $1, vip_brand_id, $2 FROM vip_brands WHERE brand_name = $3`,
		"Widget Pro", pgvector.NewVector(make([]float32, 768)), "Acme")
	require.NoError(t, err)

	rs, err := r.QueryRows(ctx,
		`SELECT product_name FROM vip_products ORDER BY vip_product_id`)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, "Widget Pro", rs.Rows[0][0])

	ranked, err := r.VectorSimilarity(ctx, make([]float32, 768), 5)
	require.NoError(t, err)
	require.Equal(t, 1, ranked.Len())
	assert.Equal(t, "Widget Pro", ranked.Rows[0][0])
	assert.Equal(t, "ACME Corp", ranked.Rows[0][1])

	require.NoError(t, r.Ping(ctx))
}
