package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BioTRaX/Growen-sub001/internal/textutil"
)

// MemoryCatalog serves a fixed set of entries. Used in tests and for local
// development through CATALOG_SEED_FILE.
type MemoryCatalog struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates a catalog holding entries.
func NewMemoryCatalog(entries ...Entry) *MemoryCatalog {
	c := &MemoryCatalog{}
	c.Add(entries...)
	return c
}

// LoadSeedFile reads a JSON array of entries.
func LoadSeedFile(path string) (*MemoryCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	return NewMemoryCatalog(entries...), nil
}

// Add appends entries. Missing sources are inferred from the ids.
func (c *MemoryCatalog) Add(entries ...Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e.Source == "" {
			if e.SupplierItemID != 0 && e.CanonicalSKU == "" {
				e.Source = SourceOffering
			} else {
				e.Source = SourceCanonical
			}
		}
		c.entries = append(c.entries, e)
	}
}

// Len returns the number of entries.
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCatalog) filter(limit int, keep func(Entry) bool) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Entry
	for _, e := range c.entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (c *MemoryCatalog) ByCanonicalSKU(_ context.Context, sku string) ([]Entry, error) {
	return c.filter(0, func(e Entry) bool {
		return e.Source == SourceCanonical && e.CanonicalSKU != "" && strings.EqualFold(e.CanonicalSKU, sku)
	}), nil
}

func (c *MemoryCatalog) ByInternalSKU(_ context.Context, sku string) ([]Entry, error) {
	return c.filter(0, func(e Entry) bool {
		return e.InternalSKU != "" && strings.EqualFold(e.InternalSKU, sku)
	}), nil
}

func (c *MemoryCatalog) BySupplierSKU(_ context.Context, sku string) ([]Entry, error) {
	return c.filter(0, func(e Entry) bool {
		return e.SupplierSKU != "" && strings.EqualFold(e.SupplierSKU, sku)
	}), nil
}

func (c *MemoryCatalog) ByCanonicalID(_ context.Context, id int64) (*Entry, error) {
	found := c.filter(1, func(e Entry) bool {
		return e.Source == SourceCanonical && e.CanonicalID == id
	})
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return &found[0], nil
}

func (c *MemoryCatalog) SearchCanonicalNames(_ context.Context, substr string, tokens []string, limit int) ([]Entry, error) {
	needle := textutil.Normalize(substr)
	return c.filter(limit, func(e Entry) bool {
		if e.Source != SourceCanonical {
			return false
		}
		name := textutil.Normalize(e.Name)
		if needle != "" && strings.Contains(name, needle) {
			return true
		}
		if len(tokens) == 0 {
			return false
		}
		for _, t := range tokens {
			if !strings.Contains(name, t) {
				return false
			}
		}
		return true
	}), nil
}

func (c *MemoryCatalog) SearchOfferings(_ context.Context, tokens []string, limit int) ([]Entry, error) {
	return c.filter(limit, func(e Entry) bool {
		if e.Source != SourceOffering {
			return false
		}
		name := textutil.Normalize(e.Name)
		for _, t := range tokens {
			if strings.Contains(name, t) {
				return true
			}
		}
		return false
	}), nil
}
