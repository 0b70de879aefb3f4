// Package resolver turns free-text product and price queries into ranked
// catalog candidates.
//
// Five stages always run: exact canonical SKU, exact internal SKU, exact
// supplier SKU, fuzzy canonical names and fuzzy supplier offerings. Results
// are merged, deduplicated by identity keeping the best tier, ranked by
// (tier, score desc, name) and capped. When any exact tier matched, fuzzy
// tiers are left out of the ranking.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/BioTRaX/Growen-sub001/internal/catalog"
	"github.com/BioTRaX/Growen-sub001/internal/metrics"
	"github.com/BioTRaX/Growen-sub001/internal/textutil"
)

const (
	DefaultLimit       = 5
	defaultSearchLimit = 50
)

// Status classifies a resolution.
type Status string

const (
	StatusInvalid   Status = "invalid"
	StatusNoMatch   Status = "no_match"
	StatusOK        Status = "ok"
	StatusAmbiguous Status = "ambiguous"
)

// Tier is the cascade stage that produced a candidate; lower is stronger.
type Tier int

const (
	TierCanonicalSKU Tier = iota + 1
	TierInternalSKU
	TierSupplierSKU
	TierCanonicalName
	TierOffering
)

func (t Tier) exact() bool { return t <= TierSupplierSKU }

func (t Tier) String() string {
	switch t {
	case TierCanonicalSKU:
		return "canonical_sku"
	case TierInternalSKU:
		return "internal_sku"
	case TierSupplierSKU:
		return "supplier_sku"
	case TierCanonicalName:
		return "canonical_name"
	case TierOffering:
		return "offering"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Candidate is one ranked match.
type Candidate struct {
	Identity       string   `json:"identity"`
	Name           string   `json:"name"`
	CanonicalID    int64    `json:"canonical_id,omitempty"`
	SupplierItemID int64    `json:"supplier_item_id,omitempty"`
	SKU            string   `json:"sku,omitempty"`
	Price          *float64 `json:"price,omitempty"`
	Stock          int      `json:"stock"`
	InStock        bool     `json:"in_stock"`
	Tags           []string `json:"tags,omitempty"`
	Tier           Tier     `json:"tier"`
	Score          float64  `json:"score"`
}

// Result is the outcome of Resolve. Candidates only hold priced entries;
// unpriced matches are reported in MissingPrice.
type Result struct {
	Query        string      `json:"query"`
	Status       Status      `json:"status"`
	Candidates   []Candidate `json:"candidates,omitempty"`
	MissingPrice []Candidate `json:"missing_price,omitempty"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithScorer replaces the primary scorer.
func WithScorer(s Scorer) Option { return func(r *Resolver) { r.scorer = s } }

// WithLimit sets the result cap.
func WithLimit(n int) Option { return func(r *Resolver) { r.limit = n } }

// WithMinScore sets the fuzzy threshold.
func WithMinScore(v float64) Option { return func(r *Resolver) { r.minScore = v } }

// WithMetrics records result statuses.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Resolver) { r.metrics = m } }

// Resolver is stateless apart from its catalog and is safe for concurrent use.
type Resolver struct {
	catalog  catalog.Catalog
	scorer   Scorer
	fallback Scorer
	limit    int
	minScore float64
	metrics  *metrics.Metrics
}

// New creates a resolver over c.
func New(c catalog.Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:  c,
		scorer:   FuzzyScorer{},
		fallback: PositionScorer{},
		limit:    DefaultLimit,
		minScore: DefaultMinScore,
	}
	for _, o := range opts {
		o(r)
	}
	if r.limit <= 0 {
		r.limit = DefaultLimit
	}
	return r
}

// Catalog returns the underlying catalog.
func (r *Resolver) Catalog() catalog.Catalog { return r.catalog }

// Resolve runs the cascade for query.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Result, error) {
	q := strings.TrimSpace(query)
	res := &Result{Query: q}
	if textutil.Normalize(q) == "" {
		res.Status = StatusInvalid
		r.metrics.RecordResolverResult(string(res.Status))
		return res, nil
	}

	found, err := r.collect(ctx, q)
	if err != nil {
		return nil, err
	}

	merged := dedupe(found)
	if hasExact(merged) {
		exact := merged[:0]
		for _, c := range merged {
			if c.Tier.exact() {
				exact = append(exact, c)
			}
		}
		merged = exact
	}
	rank(merged)

	for _, c := range merged {
		if c.Price == nil {
			res.MissingPrice = append(res.MissingPrice, c)
			continue
		}
		res.Candidates = append(res.Candidates, c)
	}
	switch len(res.Candidates) {
	case 0:
		res.Status = StatusNoMatch
	case 1:
		res.Status = StatusOK
	default:
		res.Status = StatusAmbiguous
	}
	if len(res.Candidates) > r.limit {
		res.Candidates = res.Candidates[:r.limit]
	}
	if len(res.MissingPrice) > r.limit {
		res.MissingPrice = res.MissingPrice[:r.limit]
	}
	r.metrics.RecordResolverResult(string(res.Status))
	log.Debug().
		Str("query", q).
		Str("status", string(res.Status)).
		Int("candidates", len(res.Candidates)).
		Int("missing_price", len(res.MissingPrice)).
		Msg("Resolved product query")
	return res, nil
}

func (r *Resolver) collect(ctx context.Context, q string) ([]Candidate, error) {
	var out []Candidate

	exact := []struct {
		tier   Tier
		lookup func(context.Context, string) ([]catalog.Entry, error)
	}{
		{TierCanonicalSKU, r.catalog.ByCanonicalSKU},
		{TierInternalSKU, r.catalog.ByInternalSKU},
		{TierSupplierSKU, r.catalog.BySupplierSKU},
	}
	for _, stage := range exact {
		for _, sku := range skuTerms(q) {
			entries, err := stage.lookup(ctx, sku)
			if err != nil {
				return nil, fmt.Errorf("%s lookup: %w", stage.tier, err)
			}
			for _, e := range entries {
				out = append(out, candidate(e, stage.tier, 1))
			}
		}
	}

	norm := textutil.Normalize(q)
	tokens := textutil.Tokens(q)

	names, err := r.catalog.SearchCanonicalNames(ctx, norm, tokens, defaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("canonical name search: %w", err)
	}
	out = append(out, r.score(norm, names, TierCanonicalName)...)

	if len(tokens) > 0 {
		offers, err := r.catalog.SearchOfferings(ctx, tokens, defaultSearchLimit)
		if err != nil {
			return nil, fmt.Errorf("offering search: %w", err)
		}
		out = append(out, r.score(strings.Join(tokens, " "), offers, TierOffering)...)
	}
	return out, nil
}

// score rates entries with the primary scorer, falling back to the
// position heuristic when nothing clears the threshold.
func (r *Resolver) score(query string, entries []catalog.Entry, tier Tier) []Candidate {
	if len(entries) == 0 {
		return nil
	}
	out := r.scoreWith(r.scorer, query, entries, tier)
	if len(out) == 0 && r.fallback != nil {
		out = r.scoreWith(r.fallback, query, entries, tier)
	}
	return out
}

func (r *Resolver) scoreWith(s Scorer, query string, entries []catalog.Entry, tier Tier) []Candidate {
	var out []Candidate
	for _, e := range entries {
		sc := s.Score(query, textutil.Normalize(e.Name))
		if sc >= r.minScore {
			out = append(out, candidate(e, tier, sc))
		}
	}
	return out
}

func candidate(e catalog.Entry, tier Tier, score float64) Candidate {
	return Candidate{
		Identity:       e.Identity(),
		Name:           e.Name,
		CanonicalID:    e.CanonicalID,
		SupplierItemID: e.SupplierItemID,
		SKU:            e.SKU(),
		Price:          e.Price,
		Stock:          e.Stock,
		InStock:        e.Stock > 0,
		Tags:           e.Tags,
		Tier:           tier,
		Score:          score,
	}
}

// skuTerms returns the query plus every word that looks like a SKU.
func skuTerms(q string) []string {
	terms := []string{q}
	for _, w := range strings.FieldsFunc(q, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-')
	}) {
		if w != q && looksLikeSKU(w) {
			terms = append(terms, w)
		}
	}
	return terms
}

func looksLikeSKU(w string) bool {
	var letters, digits bool
	for _, r := range w {
		switch {
		case unicode.IsDigit(r):
			digits = true
		case unicode.IsLetter(r):
			letters = true
		}
	}
	return digits && (letters || strings.ContainsAny(w, "_-")) && len(w) >= 3
}

// dedupe keeps one candidate per identity: the best tier, then the best
// score. A missing price is filled from a duplicate that has one.
func dedupe(in []Candidate) []Candidate {
	byID := make(map[string]int, len(in))
	var out []Candidate
	for _, c := range in {
		i, seen := byID[c.Identity]
		if !seen {
			byID[c.Identity] = len(out)
			out = append(out, c)
			continue
		}
		cur := out[i]
		better := c.Tier < cur.Tier || (c.Tier == cur.Tier && c.Score > cur.Score)
		if better {
			if c.Price == nil && cur.Price != nil {
				c.Price, c.Stock, c.InStock = cur.Price, cur.Stock, cur.InStock
			}
			out[i] = c
		} else if cur.Price == nil && c.Price != nil {
			out[i].Price, out[i].Stock, out[i].InStock = c.Price, c.Stock, c.InStock
		}
	}
	return out
}

func hasExact(cs []Candidate) bool {
	for _, c := range cs {
		if c.Tier.exact() {
			return true
		}
	}
	return false
}

func rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Tier != cs[j].Tier {
			return cs[i].Tier < cs[j].Tier
		}
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].Name < cs[j].Name
	})
}
