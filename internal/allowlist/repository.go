package allowlist

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Repository persists the host-managed allow-list so it survives restarts.
type Repository struct {
	db *sql.DB
}

func NewRepository(database *sql.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT app_id FROM allow_list ORDER BY app_id")
	if err != nil {
		return nil, fmt.Errorf("list allow list: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan allow list row: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allow list rows: %w", err)
	}

	return ids, nil
}

// Replace swaps the stored set for ids in one transaction. Blank and
// duplicate ids are ignored.
func (r *Repository) Replace(ctx context.Context, ids []string) error {
	cleaned := lo.Uniq(lo.Compact(lo.Map(ids, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start allow list tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM allow_list"); err != nil {
		return fmt.Errorf("clear allow list: %w", err)
	}

	for _, id := range cleaned {
		if _, err := tx.ExecContext(ctx, "INSERT INTO allow_list(app_id) VALUES (?)", id); err != nil {
			return fmt.Errorf("insert allow list entry %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allow list: %w", err)
	}
	return nil
}
