// Package meals implements the meal record operations: creation, partial
// modification, deletion, and day-scoped listing. Every operation is scoped
// to the authenticated principal; record ids are never trusted on their own.
package meals

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kcalhq/kcal/internal/model"
	"github.com/kcalhq/kcal/internal/params"
)

// Store is the persistence surface the service needs. *storage.DB satisfies it.
type Store interface {
	InsertMeal(ctx context.Context, rec model.MealRecord) (model.MealRecord, error)
	UpdateMeal(ctx context.Context, principal string, id int64, f model.MealFields) error
	DeleteMeal(ctx context.Context, principal string, id int64) error
	ListMeals(ctx context.Context, principal string, f model.ListFilter) ([]model.MealRecord, error)
}

// ValidationError marks a caller mistake (missing or malformed input) as
// opposed to an infrastructure failure. Its message is safe to return verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Service coordinates meal record mutations against the store.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a meals service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Add creates a meal for principal. Name and calories are required; the
// remaining macros are optional. Returns a human-readable confirmation.
func (s *Service) Add(ctx context.Context, principal string, rec model.MealRecord) (string, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return "", validationErrorf("meal name is required")
	}
	if rec.Calories == nil {
		return "", validationErrorf("calories is required")
	}

	rec.UserID = principal
	saved, err := s.store.InsertMeal(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("meals: add: %w", err)
	}

	s.logger.Info("meal added", "meal_id", saved.ID, "name", saved.Name)
	return fmt.Sprintf("Added %s with %s calories", saved.Name, formatMagnitude(*saved.Calories)), nil
}

// Modify applies a partial update to one of principal's meals. At least one
// field must be set.
func (s *Service) Modify(ctx context.Context, principal string, id int64, f model.MealFields) (string, error) {
	if id <= 0 {
		return "", validationErrorf("meal ID is required")
	}
	if f.Empty() {
		return "", validationErrorf("at least one field to modify is required")
	}

	if err := s.store.UpdateMeal(ctx, principal, id, f); err != nil {
		return "", fmt.Errorf("meals: modify: %w", err)
	}

	s.logger.Info("meal modified", "meal_id", id)
	return fmt.Sprintf("Modified meal with ID %d", id), nil
}

// Remove deletes one of principal's meals.
func (s *Service) Remove(ctx context.Context, principal string, id int64) (string, error) {
	if id <= 0 {
		return "", validationErrorf("meal ID is required")
	}

	if err := s.store.DeleteMeal(ctx, principal, id); err != nil {
		return "", fmt.Errorf("meals: remove: %w", err)
	}

	s.logger.Info("meal deleted", "meal_id", id)
	return fmt.Sprintf("Deleted meal with ID %d", id), nil
}

// List returns principal's meals matching the filter, oldest first.
func (s *Service) List(ctx context.Context, principal string, f model.ListFilter) ([]model.MealRecord, error) {
	recs, err := s.store.ListMeals(ctx, principal, f)
	if err != nil {
		return nil, fmt.Errorf("meals: list: %w", err)
	}
	return recs, nil
}

// FormatDaily renders a day's records for conversational display.
func FormatDaily(recs []model.MealRecord) string {
	if len(recs) == 0 {
		return "No meals found for today"
	}

	var b strings.Builder
	b.WriteString("Today's meals:\n")
	for i, m := range recs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "ID: %d - %s: %s cal, %sg protein, %sg carbs, %sg fat",
			m.ID, m.Name,
			formatOptional(m.Calories),
			formatOptional(m.Protein),
			formatOptional(m.Carbs),
			formatOptional(m.Fat),
		)
	}
	return b.String()
}

// FieldsFromParams extracts the updatable meal fields present in p.
func FieldsFromParams(p params.Params) model.MealFields {
	var f model.MealFields
	if name := p.String("name"); name != "" {
		f.Name = &name
	}
	if v, ok := p.Float("calories"); ok {
		f.Calories = &v
	}
	if v, ok := p.Float("protein"); ok {
		f.Protein = &v
	}
	if v, ok := p.Float("carbs"); ok {
		f.Carbs = &v
	}
	if v, ok := p.Float("fat"); ok {
		f.Fat = &v
	}
	return f
}

func formatMagnitude(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "0"
	}
	return formatMagnitude(*v)
}
