// Package resolve matches free-text meal references against a principal's
// meal history. Scoring combines sequence similarity with token overlap so
// both misspellings ("burito") and word-order or partial-name references
// ("burrito chicken") land on the right record.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/kcalhq/kcal/internal/model"
)

const (
	// DefaultThreshold is the minimum score at which the best candidate is
	// acted on without further confirmation.
	DefaultThreshold = 0.85

	// DefaultEnergyBoost is added to a candidate's score when its stored
	// calories exactly match the query's target energy.
	DefaultEnergyBoost = 0.1

	// maxCandidates caps how many ranked matches a resolution reports.
	maxCandidates = 5
)

// Store loads the candidate set. *storage.DB satisfies it.
type Store interface {
	ListMeals(ctx context.Context, principal string, f model.ListFilter) ([]model.MealRecord, error)
}

// Mutator applies the resolved action. *meals.Service satisfies it.
type Mutator interface {
	Modify(ctx context.Context, principal string, id int64, f model.MealFields) (string, error)
	Remove(ctx context.Context, principal string, id int64) (string, error)
}

// Query describes one resolution request.
type Query struct {
	// Name is the free-text meal reference to match.
	Name string

	// Action is what to do with a confident match: "delete", "modify", or
	// "" for find-only.
	Action string

	// Threshold overrides the resolver's configured threshold when > 0.
	Threshold float64

	// UpdateFields carries the changes to apply when Action is "modify".
	UpdateFields model.MealFields

	// TargetEnergy, when set, boosts candidates whose calories match it.
	TargetEnergy *float64
}

// Resolver ranks meal candidates against fuzzy queries and optionally acts
// on the best match.
type Resolver struct {
	store       Store
	mutator     Mutator
	logger      *slog.Logger
	threshold   float64
	energyBoost float64
}

// New creates a resolver. Non-positive threshold or negative boost fall back
// to the defaults.
func New(store Store, mutator Mutator, logger *slog.Logger, threshold, energyBoost float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if energyBoost < 0 || energyBoost >= 1 {
		energyBoost = DefaultEnergyBoost
	}
	return &Resolver{
		store:       store,
		mutator:     mutator,
		logger:      logger,
		threshold:   threshold,
		energyBoost: energyBoost,
	}
}

// Resolve ranks principal's full meal history against q. When q.Action is
// "delete" or "modify" and the best candidate scores at or above the
// threshold, the action is applied in the same call.
func (r *Resolver) Resolve(ctx context.Context, principal string, q Query) (model.Resolution, error) {
	name := normalizeName(q.Name)
	if name == "" {
		return model.Resolution{Message: "No meal name provided to match against"}, nil
	}

	threshold := r.threshold
	if q.Threshold > 0 && q.Threshold <= 1 {
		threshold = q.Threshold
	}

	recs, err := r.store.ListMeals(ctx, principal, model.ListFilter{})
	if err != nil {
		return model.Resolution{}, fmt.Errorf("resolve: load candidates: %w", err)
	}
	if len(recs) == 0 {
		return model.Resolution{Message: fmt.Sprintf("No meals found matching '%s'", q.Name)}, nil
	}

	candidates := r.rank(name, q.TargetEnergy, recs)
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	res := model.Resolution{
		Candidates: candidates,
		BestMatch:  &candidates[0],
	}

	if res.BestMatch.Score < threshold {
		res.Message = fmt.Sprintf("No confident match for '%s' (best: '%s' at %.2f)",
			q.Name, res.BestMatch.Name, res.BestMatch.Score)
		return res, nil
	}

	switch q.Action {
	case "delete":
		msg, err := r.mutator.Remove(ctx, principal, res.BestMatch.ID)
		if err != nil {
			return model.Resolution{}, fmt.Errorf("resolve: delete match: %w", err)
		}
		res.AutoActed = true
		res.Message = msg
	case "modify":
		msg, err := r.mutator.Modify(ctx, principal, res.BestMatch.ID, q.UpdateFields)
		if err != nil {
			return model.Resolution{}, fmt.Errorf("resolve: modify match: %w", err)
		}
		res.AutoActed = true
		res.Message = msg
	default:
		res.Message = fmt.Sprintf("Found '%s' (ID %d, score %.2f)",
			res.BestMatch.Name, res.BestMatch.ID, res.BestMatch.Score)
	}

	r.logger.Info("meal resolved",
		"query", q.Name,
		"matched_id", res.BestMatch.ID,
		"score", res.BestMatch.Score,
		"auto_acted", res.AutoActed,
	)
	return res, nil
}

// rank scores every record against the normalized query name and returns
// candidates sorted by descending score. The sort is stable, so score ties
// keep the store's ordering (oldest record first).
func (r *Resolver) rank(name string, targetEnergy *float64, recs []model.MealRecord) []model.MatchCandidate {
	candidates := make([]model.MatchCandidate, 0, len(recs))
	for _, rec := range recs {
		score := nameScore(name, normalizeName(rec.Name))
		if targetEnergy != nil && rec.Calories != nil && energyEqual(*rec.Calories, *targetEnergy) {
			score = math.Min(score+r.energyBoost, 1.0)
		}
		candidates = append(candidates, model.MatchCandidate{
			ID:        rec.ID,
			Name:      rec.Name,
			Calories:  rec.Calories,
			CreatedAt: rec.CreatedAt,
			Score:     score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// nameScore is the maximum of sequence similarity and token-set overlap.
// Sequence similarity is also tried per candidate token so a one-word query
// ("burito") still scores high against a multi-word name ("chicken burrito").
func nameScore(query, candidate string) float64 {
	if query == candidate {
		return 1.0
	}

	best := similarityRatio(query, candidate)
	for _, tok := range strings.Fields(candidate) {
		if s := similarityRatio(query, tok); s > best {
			best = s
		}
	}
	if j := tokenJaccard(query, candidate); j > best {
		best = j
	}
	return best
}

var nonAlnumRE = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeName lowercases and collapses punctuation to single spaces.
func normalizeName(s string) string {
	s = nonAlnumRE.ReplaceAllString(strings.ToLower(s), " ")
	return strings.TrimSpace(s)
}

// similarityRatio is Ratcliff/Obershelp similarity: twice the number of
// matching characters over the total length of both strings.
func similarityRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	return 2.0 * float64(matchingChars(a, b)) / float64(len(a)+len(b))
}

// matchingChars counts matching characters by recursively splitting around
// the longest common substring.
func matchingChars(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingChars(a[:ai], b[:bi]) +
		matchingChars(a[ai+size:], b[bi+size:])
}

// longestCommonSubstring returns the start offsets and length of the longest
// substring common to a and b.
func longestCommonSubstring(a, b string) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			if a[i] == b[j] {
				cur[j+1] = prev[j] + 1
				if cur[j+1] > size {
					size = cur[j+1]
					ai = i - size + 1
					bi = j - size + 1
				}
			} else {
				cur[j+1] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}

// tokenJaccard is the Jaccard index over whitespace-split token sets.
func tokenJaccard(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range as {
		if _, ok := bs[tok]; ok {
			intersection++
		}
	}
	union := len(as) + len(bs) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// energyEqual compares calorie values with a small tolerance so float
// round-trips through JSON don't defeat the boost.
func energyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
