package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doi-atlas/backend/internal/domain"
)

// LookupRepository backs the importer's lookup cache with the four
// category tables. The category name is the table name; it is validated
// before being interpolated into SQL.
type LookupRepository struct {
	db *pgxpool.Pool
}

func NewLookupRepository(db *pgxpool.Pool) *LookupRepository {
	return &LookupRepository{db: db}
}

func (r *LookupRepository) LoadAll(ctx context.Context, category domain.LookupCategory) (map[string]int, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("unknown lookup category %q", category)
	}

	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT value, id FROM %s`, category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make(map[string]int)
	for rows.Next() {
		var value string
		var id int
		if err := rows.Scan(&value, &id); err != nil {
			return nil, err
		}
		pairs[value] = id
	}
	return pairs, rows.Err()
}

// GetOrCreate inserts the value if absent and returns its id in one
// statement. The no-op DO UPDATE makes the RETURNING clause yield the
// existing id on conflict, avoiding a select-then-insert race.
func (r *LookupRepository) GetOrCreate(ctx context.Context, category domain.LookupCategory, value string) (int, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("unknown lookup category %q", category)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (value) VALUES ($1)
		ON CONFLICT (value) DO UPDATE SET value = EXCLUDED.value
		RETURNING id
	`, category)

	var id int
	if err := r.db.QueryRow(ctx, query, value).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
