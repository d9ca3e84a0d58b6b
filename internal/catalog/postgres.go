package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/pkg/postgres"
)

// PostgresItems reads the catalog from the items table. The snapshot ref is
// derived from the live row count and latest update time, so an unchanged
// table yields the same ref and rebuilds stay idempotent.
type PostgresItems struct {
	Client *postgres.Client
}

func (p PostgresItems) Ref() string {
	var count int
	var updated sql.NullTime
	row := p.Client.DB.QueryRow(
		`SELECT COUNT(*), MAX(updated_at) FROM items WHERE retired_at IS NULL`)
	if err := row.Scan(&count, &updated); err != nil {
		return "items:unknown"
	}
	return fmt.Sprintf("items:%d:%d", count, updated.Time.Unix())
}

func (p PostgresItems) Items(ctx context.Context) ([]Item, error) {
	rows, err := p.Client.DB.QueryContext(ctx,
		`SELECT item_id, title, COALESCE(description, '')
		 FROM items
		 WHERE retired_at IS NULL
		 ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Title, &it.Description); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating item rows: %w", err)
	}
	return items, nil
}

// PostgresRatings reads interactions from the ratings table.
type PostgresRatings struct {
	Client *postgres.Client
}

func (p PostgresRatings) Ref() string {
	var count int
	var created sql.NullTime
	row := p.Client.DB.QueryRow(`SELECT COUNT(*), MAX(created_at) FROM ratings`)
	if err := row.Scan(&count, &created); err != nil {
		return "ratings:unknown"
	}
	return fmt.Sprintf("ratings:%d:%d", count, created.Time.Unix())
}

func (p PostgresRatings) Interactions(ctx context.Context) ([]Interaction, error) {
	rows, err := p.Client.DB.QueryContext(ctx,
		`SELECT user_id, item_id, rating, created_at
		 FROM ratings
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying ratings: %w", err)
	}
	defer rows.Close()

	var interactions []Interaction
	for rows.Next() {
		var in Interaction
		var ts time.Time
		if err := rows.Scan(&in.UserID, &in.ItemID, &in.Rating, &ts); err != nil {
			return nil, fmt.Errorf("scanning rating row: %w", err)
		}
		in.Timestamp = ts
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rating rows: %w", err)
	}
	return interactions, nil
}
