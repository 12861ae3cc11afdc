package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/pgmirror/internal/rowset"
)

// productQuery selects embedded products; the brand join happens in memory
// after distance ranking because the mirror has no vector operator to push
// the ordering down to.
const productQuery = `
SELECT
    vip_product_id,
    vip_brand_id,
    COALESCE(NULLIF(TRIM(consumer_product_name), ''), TRIM(product_name)) AS product_name,
    embedding
FROM vip_products
WHERE embedding IS NOT NULL
`

const brandQuery = `
SELECT
    vip_brand_id,
    COALESCE(NULLIF(TRIM(consumer_brand_name), ''), TRIM(brand_name)) AS brand_name
FROM vip_brands
`

// similarityColumns is the result shape shared with the primary's native
// vector query.
var similarityColumns = []string{"product_name", "brand_name"}

// VectorSimilarity ranks mirrored products by Euclidean distance to the
// query vector and returns the limit closest, each resolved to product and
// brand display names. Candidates whose stored embedding cannot be parsed
// or whose dimensionality differs from the query are excluded. Ordering is
// stable by increasing distance.
func (m *Mirror) VectorSimilarity(ctx context.Context, query []float32, limit int) (*rowset.RowSet, error) {
	if !m.Available() {
		return nil, ErrUnavailable
	}
	if len(query) == 0 {
		return nil, errors.New("query vector is empty")
	}
	if limit < 1 {
		limit = 1
	}

	db, err := m.openReadOnly()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	products, err := db.QueryContext(ctx, productQuery)
	if err != nil {
		return nil, fmt.Errorf("mirror product query: %w", err)
	}
	defer products.Close()

	type candidate struct {
		productName any
		brandKey    string
		distance    float64
	}

	var candidates []candidate
	for products.Next() {
		var productID, brandID, productName, embedding any
		if err := products.Scan(&productID, &brandID, &productName, &embedding); err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		stored, ok := parseEmbedding(embedding)
		if !ok || len(stored) != len(query) {
			continue
		}
		candidates = append(candidates, candidate{
			productName: normalizeValue(productName),
			brandKey:    lookupKey(brandID),
			distance:    euclideanDistance(stored, query),
		})
	}
	if err := products.Err(); err != nil {
		return nil, fmt.Errorf("iterating product rows: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	brandNames, err := brandNameMap(ctx, db)
	if err != nil {
		return nil, err
	}

	result := &rowset.RowSet{Columns: similarityColumns}
	for _, c := range candidates {
		var brandName any
		if name, ok := brandNames[c.brandKey]; ok {
			brandName = name
		}
		result.Rows = append(result.Rows, []any{c.productName, brandName})
	}
	return result, nil
}

// brandNameMap loads the brand lookup table keyed by normalized brand id.
func brandNameMap(ctx context.Context, db *sql.DB) (map[string]any, error) {
	rows, err := db.QueryContext(ctx, brandQuery)
	if err != nil {
		return nil, fmt.Errorf("mirror brand query: %w", err)
	}
	defer rows.Close()

	names := make(map[string]any)
	for rows.Next() {
		var brandID, brandName any
		if err := rows.Scan(&brandID, &brandName); err != nil {
			return nil, fmt.Errorf("scanning brand row: %w", err)
		}
		names[lookupKey(brandID)] = normalizeValue(brandName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating brand rows: %w", err)
	}
	return names, nil
}

// parseEmbedding decodes a stored embedding, tolerating the pgvector text
// form ([0.1,0.2]), a JSON array, and bare comma-separated floats.
func parseEmbedding(value any) ([]float32, bool) {
	var text string
	switch v := value.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return nil, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	// Bracketed form: pgvector text ([0.1,0.2]) or a JSON array.
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		var vec pgvector.Vector
		if err := vec.Parse(text); err == nil && len(vec.Slice()) > 0 {
			return vec.Slice(), true
		}
		var parsed []float32
		if err := json.Unmarshal([]byte(text), &parsed); err == nil && len(parsed) > 0 {
			return parsed, true
		}
		return nil, false
	}

	parts := strings.Split(text, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, false
		}
		out = append(out, float32(f))
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// euclideanDistance computes the L2 distance between two equal-length
// vectors.
func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// lookupKey normalizes a scanned value for use as an in-memory join key,
// so integer and text representations of the same id collide.
func lookupKey(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return strings.TrimSpace(string(v))
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

// normalizeValue converts byte slices to strings for result rows.
func normalizeValue(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
