// Package model defines the domain types shared across the storage,
// service, and dispatch layers.
package model

import "time"

// MealRecord is a logged meal owned by a single principal.
// The four nutritional magnitudes are optional; nil means "not recorded".
type MealRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Calories  *float64  `json:"calories,omitempty"`
	Protein   *float64  `json:"protein,omitempty"`
	Carbs     *float64  `json:"carbs,omitempty"`
	Fat       *float64  `json:"fat,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MealFields is the partial field set carried by an add or modify request.
// Only non-nil fields are applied (COALESCE pattern in storage).
type MealFields struct {
	Name     *string
	Calories *float64
	Protein  *float64
	Carbs    *float64
	Fat      *float64
}

// Empty reports whether no updatable field is set.
func (f MealFields) Empty() bool {
	return f.Name == nil && f.Calories == nil && f.Protein == nil && f.Carbs == nil && f.Fat == nil
}

// ListFilter restricts a meal listing to a creation-time window.
// Nil bounds are open; the zero value lists the principal's full history.
type ListFilter struct {
	Since *time.Time
	Until *time.Time
}

// DayFilter returns a ListFilter covering the UTC day containing t.
func DayFilter(t time.Time) ListFilter {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	return ListFilter{Since: &start, Until: &end}
}
