// Package catalog is the read-only view of the product ledger used by the
// resolver and the local tool fallback. The ledger itself is owned by the
// host application; this package only reads it.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-entry lookups.
var ErrNotFound = errors.New("catalog entry not found")

// Entry sources.
const (
	SourceCanonical = "canonical"
	SourceOffering  = "offering"
)

// Entry is one sellable product as seen by the resolver. CanonicalID is zero
// for supplier offerings not linked to a canonical product.
type Entry struct {
	CanonicalID    int64    `json:"canonical_id,omitempty"`
	SupplierItemID int64    `json:"supplier_item_id,omitempty"`
	CanonicalSKU   string   `json:"canonical_sku,omitempty"`
	InternalSKU    string   `json:"internal_sku,omitempty"`
	SupplierSKU    string   `json:"supplier_sku,omitempty"`
	Name           string   `json:"name"`
	Price          *float64 `json:"price,omitempty"`
	Stock          int      `json:"stock"`
	Tags           []string `json:"tags,omitempty"`
	Description    string   `json:"description,omitempty"`
	Source         string   `json:"source"`
}

// Identity is the dedup key: the canonical product when linked, else the
// supplier item.
func (e Entry) Identity() string {
	if e.CanonicalID != 0 {
		return fmt.Sprintf("canonical:%d", e.CanonicalID)
	}
	return fmt.Sprintf("supplier:%d", e.SupplierItemID)
}

// SKU returns the most specific SKU available, canonical first.
func (e Entry) SKU() string {
	switch {
	case e.CanonicalSKU != "":
		return e.CanonicalSKU
	case e.InternalSKU != "":
		return e.InternalSKU
	default:
		return e.SupplierSKU
	}
}

// Catalog reads the ledger. SKU lookups are case-insensitive exact matches.
type Catalog interface {
	ByCanonicalSKU(ctx context.Context, sku string) ([]Entry, error)
	ByInternalSKU(ctx context.Context, sku string) ([]Entry, error)
	BySupplierSKU(ctx context.Context, sku string) ([]Entry, error)

	// ByCanonicalID returns one canonical product or ErrNotFound.
	ByCanonicalID(ctx context.Context, id int64) (*Entry, error)

	// SearchCanonicalNames returns canonical products whose name contains
	// substr or every token, at most limit.
	SearchCanonicalNames(ctx context.Context, substr string, tokens []string, limit int) ([]Entry, error)

	// SearchOfferings returns supplier offerings whose title contains any
	// token, at most limit.
	SearchOfferings(ctx context.Context, tokens []string, limit int) ([]Entry, error)
}
