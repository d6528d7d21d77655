package model

import "time"

// MatchCandidate is a stored meal considered as a possible match for a
// free-text query. Recomputed per resolution call, never persisted.
type MatchCandidate struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Calories  *float64  `json:"calories,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Score     float64   `json:"score"`
}

// Resolution is the outcome of a fuzzy lookup: the ranked candidates, the
// best match if any, and whether a requested action was performed
// automatically.
type Resolution struct {
	Candidates []MatchCandidate `json:"candidates"`
	BestMatch  *MatchCandidate  `json:"best_match,omitempty"`
	AutoActed  bool             `json:"auto_acted"`
	Message    string           `json:"message"`
}
