package labels

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresCatalog reads the catalog from the label_catalog table.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Catalog(ctx context.Context) (Set, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT category, value
		FROM label_catalog
		ORDER BY category ASC, sort_order ASC, value ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list label catalog: %w", err)
	}
	defer rows.Close()

	catalog := Set{}
	for rows.Next() {
		var category, value string
		if err := rows.Scan(&category, &value); err != nil {
			return nil, fmt.Errorf("scan label catalog: %w", err)
		}
		catalog[category] = append(catalog[category], value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate label catalog: %w", err)
	}
	return catalog, nil
}

// Replace swaps the whole catalog in one transaction.
func (c *PostgresCatalog) Replace(ctx context.Context, catalog Set) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM label_catalog`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear label catalog: %w", err)
	}
	for _, category := range catalog.Categories() {
		for order, value := range catalog[category] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO label_catalog (category, value, sort_order)
				VALUES ($1, $2, $3)
				ON CONFLICT (category, value) DO NOTHING
			`, category, value, order); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("insert label %s/%s: %w", category, value, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}
