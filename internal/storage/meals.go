package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/kcalhq/kcal/internal/model"
)

// InsertMeal inserts a new meal record owned by rec.UserID and returns it
// with the store-assigned id and creation timestamp.
func (db *DB) InsertMeal(ctx context.Context, rec model.MealRecord) (model.MealRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO meals (user_id, name, calories, protein, carbs, fat, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		rec.UserID, rec.Name, rec.Calories, rec.Protein, rec.Carbs, rec.Fat, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return model.MealRecord{}, &Error{Op: "insert meal", Err: err}
	}
	return rec, nil
}

// UpdateMeal performs a partial update of a meal. Only non-nil fields are
// applied (COALESCE pattern). The WHERE clause carries both id and principal;
// zero rows affected collapses "wrong owner" and "no such meal" into
// ErrNotFound.
func (db *DB) UpdateMeal(ctx context.Context, principal string, id int64, f model.MealFields) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE meals
		 SET name     = COALESCE($1, name),
		     calories = COALESCE($2, calories),
		     protein  = COALESCE($3, protein),
		     carbs    = COALESCE($4, carbs),
		     fat      = COALESCE($5, fat)
		 WHERE id = $6 AND user_id = $7`,
		f.Name, f.Calories, f.Protein, f.Carbs, f.Fat, id, principal,
	)
	if err != nil {
		return &Error{Op: "update meal", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: meal %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteMeal removes a meal owned by principal.
func (db *DB) DeleteMeal(ctx context.Context, principal string, id int64) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM meals WHERE id = $1 AND user_id = $2`, id, principal,
	)
	if err != nil {
		return &Error{Op: "delete meal", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: meal %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListMeals returns principal's meals ordered by creation time ascending,
// optionally restricted to a creation-time window.
func (db *DB) ListMeals(ctx context.Context, principal string, f model.ListFilter) ([]model.MealRecord, error) {
	query := `SELECT id, user_id, name, calories, protein, carbs, fat, created_at
	          FROM meals WHERE user_id = $1`
	args := []any{principal}

	if f.Since != nil {
		args = append(args, *f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &Error{Op: "list meals", Err: err}
	}
	defer rows.Close()

	var meals []model.MealRecord
	for rows.Next() {
		var m model.MealRecord
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.Name, &m.Calories, &m.Protein, &m.Carbs, &m.Fat, &m.CreatedAt,
		); err != nil {
			return nil, &Error{Op: "scan meal", Err: err}
		}
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list meals", Err: err}
	}
	return meals, nil
}
