package resolver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioTRaX/Growen-sub001/internal/catalog"
	"github.com/BioTRaX/Growen-sub001/internal/toolrpc"
)

func price(v float64) *float64 { return &v }

func testCatalog() *catalog.MemoryCatalog {
	return catalog.NewMemoryCatalog(
		catalog.Entry{CanonicalID: 28, CanonicalSKU: "FERT_0028_MIN", InternalSKU: "INT-28", Name: "Fertilizante Mineral Crecimiento 1L", Price: price(5500), Stock: 4},
		catalog.Entry{CanonicalID: 40, CanonicalSKU: "FERT_0040_ORG", Name: "Fertilizante Orgánico Floración 1L", Price: price(7200), Stock: 12},
		catalog.Entry{CanonicalID: 31, CanonicalSKU: "SUS_0031_COC", Name: "Sustrato de Coco 50L", Price: price(9800), Stock: 0},
		catalog.Entry{CanonicalID: 50, CanonicalSKU: "MAC_0050_TEX", Name: "Maceta Textil 20L", Stock: 7},
		catalog.Entry{CanonicalID: 28, SupplierItemID: 900, SupplierSKU: "PRV-FERT-1", Name: "Fertilizante mineral crecimiento x 1 lt"},
		catalog.Entry{CanonicalID: 50, SupplierItemID: 903, SupplierSKU: "PRV-MAC-20", Name: "Maceta textil 20 litros", Price: price(1500), Stock: 7},
		catalog.Entry{SupplierItemID: 901, SupplierSKU: "PRV-PERL-5", Name: "Perlita agrícola 5 litros", Price: price(2100), Stock: 10},
		catalog.Entry{SupplierItemID: 902, Name: "Sustrato Premium 25L", Stock: 3},
	)
}

func identities(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Identity
	}
	return out
}

func TestResolve_Invalid(t *testing.T) {
	r := New(testCatalog())
	for _, q := range []string{"", "   ", "¿?"} {
		res, err := r.Resolve(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, StatusInvalid, res.Status, "query %q", q)
		assert.Empty(t, res.Candidates)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	res, err := New(testCatalog()).Resolve(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, res.Status)
}

func TestResolve_ExactCanonicalSKU(t *testing.T) {
	r := New(testCatalog())
	for _, q := range []string{"FERT_0028_MIN", "fert_0028_min", "precio FERT_0028_MIN"} {
		res, err := r.Resolve(context.Background(), q)
		require.NoError(t, err)
		require.Equal(t, StatusOK, res.Status, "query %q", q)
		c := res.Candidates[0]
		assert.Equal(t, "canonical:28", c.Identity)
		assert.Equal(t, TierCanonicalSKU, c.Tier)
		assert.Equal(t, 5500.0, *c.Price)
		assert.True(t, c.InStock)
	}
}

func TestResolve_InternalAndSupplierSKU(t *testing.T) {
	r := New(testCatalog())

	res, err := r.Resolve(context.Background(), "INT-28")
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, TierInternalSKU, res.Candidates[0].Tier)

	res, err = r.Resolve(context.Background(), "prv-perl-5")
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, TierSupplierSKU, res.Candidates[0].Tier)
	assert.Equal(t, "supplier:901", res.Candidates[0].Identity)
}

func TestResolve_ExactTierHidesFuzzy(t *testing.T) {
	res, err := New(testCatalog()).Resolve(context.Background(), "fertilizante FERT_0040_ORG")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"canonical:40"}, identities(res.Candidates))
	assert.Empty(t, res.MissingPrice, "fuzzy offering matches are not ranked next to an exact hit")
}

func TestResolve_AmbiguousIsDeduplicated(t *testing.T) {
	res, err := New(testCatalog()).Resolve(context.Background(), "fertilizante")
	require.NoError(t, err)
	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Equal(t, []string{"canonical:28", "canonical:40"}, identities(res.Candidates))
	for _, c := range res.Candidates {
		assert.Equal(t, TierCanonicalName, c.Tier, "the canonical name beats the linked offering")
	}
	assert.Empty(t, res.MissingPrice, "the unpriced offering collapses into its canonical product")
}

func TestResolve_AccentInsensitive(t *testing.T) {
	res, err := New(testCatalog()).Resolve(context.Background(), "ORGANICO floracion")
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "canonical:40", res.Candidates[0].Identity)
}

func TestResolve_MissingPriceIsReported(t *testing.T) {
	res, err := New(testCatalog()).Resolve(context.Background(), "sustrato")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"canonical:31"}, identities(res.Candidates))
	assert.False(t, res.Candidates[0].InStock)
	assert.Equal(t, []string{"supplier:902"}, identities(res.MissingPrice))
}

func TestResolve_PriceFilledFromDuplicate(t *testing.T) {
	res, err := New(testCatalog()).Resolve(context.Background(), "maceta")
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	c := res.Candidates[0]
	assert.Equal(t, "canonical:50", c.Identity)
	assert.Equal(t, TierCanonicalName, c.Tier)
	require.NotNil(t, c.Price)
	assert.Equal(t, 1500.0, *c.Price)
}

func TestResolve_LimitKeepsClassification(t *testing.T) {
	res, err := New(testCatalog(), WithLimit(1)).Resolve(context.Background(), "fertilizante")
	require.NoError(t, err)
	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Len(t, res.Candidates, 1)
}

type errCatalog struct{ catalog.Catalog }

func (errCatalog) ByCanonicalSKU(context.Context, string) ([]catalog.Entry, error) {
	return nil, errors.New("connection reset")
}

func TestResolve_CatalogError(t *testing.T) {
	_, err := New(errCatalog{testCatalog()}).Resolve(context.Background(), "fertilizante")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canonical_sku lookup")
}

func TestScorers(t *testing.T) {
	f := FuzzyScorer{}
	assert.Equal(t, 1.0, f.Score("coco", "sustrato de coco 50l"))
	assert.Less(t, f.Score("cco", "sustrato de coco 50l"), 1.0)
	assert.Zero(t, f.Score("xyz", "sustrato de coco 50l"))
	assert.Zero(t, f.Score("", "sustrato"))

	p := PositionScorer{}
	assert.Equal(t, 1.0, p.Score("sustrato", "sustrato de coco"))
	assert.Greater(t, p.Score("sustrato", "sustrato de coco"), p.Score("coco", "sustrato de coco"))
	assert.Zero(t, p.Score("perlita", "sustrato de coco"))
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		in   *float64
		want string
	}{
		{price(5500), "$5.500"},
		{price(999), "$999"},
		{price(1234567), "$1.234.567"},
		{price(1234.5), "$1.234,50"},
		{price(0.07), "$0,07"},
		{nil, "sin precio"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatPrice(tc.in))
	}
}

func TestStockPhrase(t *testing.T) {
	assert.Equal(t, "sin stock por el momento", StockPhrase(0))
	assert.Equal(t, "queda 1 unidad", StockPhrase(1))
	assert.Equal(t, "quedan 4 unidades", StockPhrase(4))
	assert.Equal(t, "hay stock disponible", StockPhrase(40))
}

func TestLocalTools(t *testing.T) {
	tools := NewLocalTools(New(testCatalog()))
	ctx := context.Background()
	guest := toolrpc.Caller{Role: "cliente"}

	t.Run("search", func(t *testing.T) {
		out, err := tools.Call(ctx, "search_products", map[string]interface{}{"query": "fertilizante"}, guest)
		require.NoError(t, err)
		items, ok := out["items"].([]interface{})
		require.True(t, ok)
		require.Len(t, items, 2)
		first := items[0].(map[string]interface{})
		assert.Equal(t, int64(28), first["product_id"])
		assert.Equal(t, 5500.0, first["price"])
		assert.NotContains(t, out, "missing_price")
	})

	t.Run("search lists unpriced apart", func(t *testing.T) {
		out, err := tools.Call(ctx, "search_products", map[string]interface{}{"query": "sustrato"}, guest)
		require.NoError(t, err)
		items := out["items"].([]interface{})
		require.Len(t, items, 1)
		assert.Equal(t, "Sustrato de Coco 50L", items[0].(map[string]interface{})["name"])

		unpriced, ok := out["missing_price"].([]interface{})
		require.True(t, ok)
		require.Len(t, unpriced, 1)
		item := unpriced[0].(map[string]interface{})
		assert.Equal(t, "Sustrato Premium 25L", item["name"])
		assert.NotContains(t, item, "price")
	})

	t.Run("detail by id", func(t *testing.T) {
		out, err := tools.Call(ctx, "get_product_info", map[string]interface{}{"product_id": "31"}, guest)
		require.NoError(t, err)
		p := out["product"].(map[string]interface{})
		assert.Equal(t, "Sustrato de Coco 50L", p["name"])
		assert.Equal(t, false, p["in_stock"])
		assert.NotContains(t, p, "internal_sku")
	})

	t.Run("detail by sku", func(t *testing.T) {
		out, err := tools.Call(ctx, "get_product_info", map[string]interface{}{"sku": "INT-28"}, guest)
		require.NoError(t, err)
		assert.Equal(t, "Fertilizante Mineral Crecimiento 1L", out["product"].(map[string]interface{})["name"])
	})

	t.Run("not found", func(t *testing.T) {
		_, err := tools.Call(ctx, "get_product_info", map[string]interface{}{"product_id": "999"}, guest)
		var rpcErr *toolrpc.Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, toolrpc.CodeCallFailed, rpcErr.Code)
		assert.Equal(t, http.StatusNotFound, rpcErr.Status)
	})

	t.Run("full info is elevated only", func(t *testing.T) {
		_, err := tools.Call(ctx, "get_product_full_info", map[string]interface{}{"product_id": "28"}, guest)
		var rpcErr *toolrpc.Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, http.StatusForbidden, rpcErr.Status)

		out, err := tools.Call(ctx, "get_product_full_info", map[string]interface{}{"product_id": "28"}, toolrpc.Caller{Role: "admin"})
		require.NoError(t, err)
		assert.Equal(t, "INT-28", out["product"].(map[string]interface{})["internal_sku"])
	})
}
