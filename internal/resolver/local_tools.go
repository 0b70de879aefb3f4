package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/BioTRaX/Growen-sub001/internal/catalog"
	"github.com/BioTRaX/Growen-sub001/internal/executor"
	"github.com/BioTRaX/Growen-sub001/internal/toolrpc"
	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
)

// LocalTools serves the product tools straight from the catalog. It is used
// as the executor's dispatcher when no tool server is configured, and
// returns the same payload shapes and error types as the RPC client.
type LocalTools struct {
	resolver *Resolver
}

// NewLocalTools wraps r as a tool dispatcher.
func NewLocalTools(r *Resolver) *LocalTools {
	return &LocalTools{resolver: r}
}

// Call implements executor.ToolDispatcher.
func (l *LocalTools) Call(ctx context.Context, tool string, params map[string]interface{}, caller toolrpc.Caller) (map[string]interface{}, error) {
	switch tool {
	case executor.ToolSearchProducts:
		return l.search(ctx, tool, params)
	case executor.ToolProductInfo:
		return l.detail(ctx, tool, params, false)
	case executor.ToolProductFullInfo:
		if !contracts.IsElevated(caller.Role) {
			return nil, &toolrpc.Error{Code: toolrpc.CodeCallFailed, Tool: tool, Status: http.StatusForbidden}
		}
		return l.detail(ctx, tool, params, true)
	}
	return nil, &toolrpc.Error{Code: toolrpc.CodeCallFailed, Tool: tool, Status: http.StatusNotFound}
}

func (l *LocalTools) search(ctx context.Context, tool string, params map[string]interface{}) (map[string]interface{}, error) {
	q, _ := params["query"].(string)
	if strings.TrimSpace(q) == "" {
		return nil, &toolrpc.Error{Code: toolrpc.CodeCallFailed, Tool: tool, Status: http.StatusBadRequest}
	}
	res, err := l.resolver.Resolve(ctx, q)
	if err != nil {
		return nil, &toolrpc.Error{Code: toolrpc.CodeInternalFailure, Tool: tool, Err: err}
	}
	items := make([]interface{}, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		items = append(items, candidateItem(c))
	}
	out := map[string]interface{}{
		"query":  q,
		"status": string(res.Status),
		"items":  items,
	}
	// Unpriced matches are listed apart so they are never quoted or offered.
	if len(res.MissingPrice) > 0 {
		unpriced := make([]interface{}, 0, len(res.MissingPrice))
		for _, c := range res.MissingPrice {
			unpriced = append(unpriced, candidateItem(c))
		}
		out["missing_price"] = unpriced
	}
	return out, nil
}

func (l *LocalTools) detail(ctx context.Context, tool string, params map[string]interface{}, full bool) (map[string]interface{}, error) {
	e, err := l.lookup(ctx, params)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, &toolrpc.Error{Code: toolrpc.CodeCallFailed, Tool: tool, Status: http.StatusNotFound, Err: err}
	}
	if err != nil {
		return nil, &toolrpc.Error{Code: toolrpc.CodeInternalFailure, Tool: tool, Err: err}
	}

	item := entryItem(*e)
	if full {
		item["internal_sku"] = e.InternalSKU
		item["supplier_sku"] = e.SupplierSKU
		item["description"] = e.Description
		item["source"] = e.Source
	}
	return map[string]interface{}{"product": item}, nil
}

func (l *LocalTools) lookup(ctx context.Context, params map[string]interface{}) (*catalog.Entry, error) {
	cat := l.resolver.Catalog()
	if id, _ := params["product_id"].(string); id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return cat.ByCanonicalID(ctx, n)
		}
		params = map[string]interface{}{"sku": id}
	}
	sku, _ := params["sku"].(string)
	if sku == "" {
		return nil, fmt.Errorf("no identifier: %w", catalog.ErrNotFound)
	}
	for _, by := range []func(context.Context, string) ([]catalog.Entry, error){
		cat.ByCanonicalSKU, cat.ByInternalSKU, cat.BySupplierSKU,
	} {
		entries, err := by(ctx, sku)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return &entries[0], nil
		}
	}
	return nil, catalog.ErrNotFound
}

func candidateItem(c Candidate) map[string]interface{} {
	item := map[string]interface{}{
		"name":     c.Name,
		"stock":    c.Stock,
		"in_stock": c.InStock,
	}
	if c.CanonicalID != 0 {
		item["product_id"] = c.CanonicalID
	}
	if c.SKU != "" {
		item["canonical_sku"] = c.SKU
	}
	if c.Price != nil {
		item["price"] = *c.Price
	}
	if len(c.Tags) > 0 {
		item["tags"] = c.Tags
	}
	return item
}

func entryItem(e catalog.Entry) map[string]interface{} {
	return candidateItem(candidate(e, 0, 1))
}
