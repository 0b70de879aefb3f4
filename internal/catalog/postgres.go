package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresCatalog reads canonical_products and supplier_products.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

var _ Catalog = (*PostgresCatalog)(nil)

// OpenPostgres connects to dsn and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresCatalog, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse catalog dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	log.Info().Str("host", cfg.ConnConfig.Host).Msg("📦 Catalog connected to PostgreSQL")
	return &PostgresCatalog{pool: pool}, nil
}

// Close releases the pool.
func (c *PostgresCatalog) Close() { c.pool.Close() }

const canonicalColumns = `
	cp.id, COALESCE(cp.canonical_sku, ''), COALESCE(cp.internal_sku, ''), '',
	cp.name, cp.sale_price, COALESCE(cp.stock, 0), COALESCE(cp.tags, '{}'), COALESCE(cp.description, ''),
	0`

const offeringColumns = `
	COALESCE(sp.canonical_product_id, 0), '', '', COALESCE(sp.supplier_sku, ''),
	sp.title, sp.current_sale_price, COALESCE(sp.stock, 0), '{}'::text[], '',
	sp.id`

func (c *PostgresCatalog) query(ctx context.Context, source, sql string, args ...any) ([]Entry, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{Source: source}
		if err := rows.Scan(
			&e.CanonicalID, &e.CanonicalSKU, &e.InternalSKU, &e.SupplierSKU,
			&e.Name, &e.Price, &e.Stock, &e.Tags, &e.Description,
			&e.SupplierItemID,
		); err != nil {
			return nil, fmt.Errorf("catalog scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) ByCanonicalSKU(ctx context.Context, sku string) ([]Entry, error) {
	return c.query(ctx, SourceCanonical,
		`SELECT`+canonicalColumns+` FROM canonical_products cp WHERE lower(cp.canonical_sku) = lower($1)`, sku)
}

func (c *PostgresCatalog) ByInternalSKU(ctx context.Context, sku string) ([]Entry, error) {
	return c.query(ctx, SourceCanonical,
		`SELECT`+canonicalColumns+` FROM canonical_products cp WHERE lower(cp.internal_sku) = lower($1)`, sku)
}

func (c *PostgresCatalog) BySupplierSKU(ctx context.Context, sku string) ([]Entry, error) {
	return c.query(ctx, SourceOffering,
		`SELECT`+offeringColumns+` FROM supplier_products sp WHERE lower(sp.supplier_sku) = lower($1)`, sku)
}

func (c *PostgresCatalog) ByCanonicalID(ctx context.Context, id int64) (*Entry, error) {
	entries, err := c.query(ctx, SourceCanonical,
		`SELECT`+canonicalColumns+` FROM canonical_products cp WHERE cp.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

func (c *PostgresCatalog) SearchCanonicalNames(ctx context.Context, substr string, tokens []string, limit int) ([]Entry, error) {
	conds := []string{"cp.name ILIKE $1"}
	args := []any{"%" + escapeLike(substr) + "%"}
	if len(tokens) > 0 {
		var all []string
		for _, t := range tokens {
			args = append(args, "%"+escapeLike(t)+"%")
			all = append(all, fmt.Sprintf("cp.name ILIKE $%d", len(args)))
		}
		conds = append(conds, "("+strings.Join(all, " AND ")+")")
	}
	args = append(args, limit)
	sql := fmt.Sprintf(`SELECT%s FROM canonical_products cp WHERE %s ORDER BY cp.name LIMIT $%d`,
		canonicalColumns, strings.Join(conds, " OR "), len(args))
	return c.query(ctx, SourceCanonical, sql, args...)
}

func (c *PostgresCatalog) SearchOfferings(ctx context.Context, tokens []string, limit int) ([]Entry, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	var ors []string
	var args []any
	for _, t := range tokens {
		args = append(args, "%"+escapeLike(t)+"%")
		ors = append(ors, fmt.Sprintf("sp.title ILIKE $%d", len(args)))
	}
	args = append(args, limit)
	sql := fmt.Sprintf(`SELECT%s FROM supplier_products sp WHERE %s ORDER BY sp.title LIMIT $%d`,
		offeringColumns, strings.Join(ors, " OR "), len(args))
	return c.query(ctx, SourceOffering, sql, args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
