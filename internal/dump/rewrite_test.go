package dump

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSkipStatement(t *testing.T) {
	skipped := []string{
		"SET statement_timeout = 0;",
		"SELECT pg_catalog.set_config('search_path', '', false);",
		"ALTER TABLE ONLY public.vip_products ADD CONSTRAINT pk PRIMARY KEY (vip_product_id);",
		"GRANT ALL ON TABLE public.app_inventory TO readonly;",
		"REVOKE ALL ON SCHEMA public FROM PUBLIC;",
		"COMMENT ON EXTENSION vector IS 'vector data type';",
		"CREATE EXTENSION IF NOT EXISTS vector WITH SCHEMA public;",
		"DROP EXTENSION vector;",
		"CREATE SEQUENCE public.vip_products_id_seq;",
		"CREATE INDEX idx_embedding ON public.vip_products USING ivfflat (embedding);",
		"CREATE UNIQUE INDEX uq_brand ON public.vip_brands (vip_brand_id);",
		"BEGIN;",
		"COMMIT;",
		"  ;  ",
	}
	for _, stmt := range skipped {
		assert.True(t, SkipStatement(stmt), "expected skip: %s", stmt)
	}

	kept := []string{
		"CREATE TABLE public.vip_brands (vip_brand_id integer, brand_name text);",
		"INSERT INTO app_inventory VALUES ('A', 'Widget', 3, 9.99);",
		"SELECT 1;",
		"DROP TABLE IF EXISTS vip_products;",
	}
	for _, stmt := range kept {
		assert.False(t, SkipStatement(stmt), "expected keep: %s", stmt)
	}
}

func TestRewriteStatementVectorType(t *testing.T) {
	in := `CREATE TABLE public.vip_products (
    vip_product_id integer DEFAULT nextval('public.vip_products_id_seq'::regclass),
    product_name text,
    embedding public.vector(768)
);`

	out := RewriteStatement(in)
	assert.Contains(t, out, "embedding TEXT")
	assert.NotContains(t, out, "vector(768)")
	assert.NotContains(t, out, "nextval")
	assert.NotContains(t, out, "public.")
	assert.Contains(t, out, "CREATE TABLE vip_products")
}

func TestRewriteStatementLeavesDMLAlone(t *testing.T) {
	in := "INSERT INTO vip_brands (vip_brand_id, brand_name) VALUES (1, 'Acme');"
	assert.Equal(t,
		"INSERT INTO vip_brands (vip_brand_id, brand_name) VALUES (1, 'Acme')",
		RewriteStatement(in))
}

func TestRewriteStatementStripsSchemaQualifier(t *testing.T) {
	in := `DROP TABLE IF EXISTS "public".app_inventory;`
	assert.Equal(t, "DROP TABLE IF EXISTS app_inventory", RewriteStatement(in))
}
