package domain

import (
	"math/rand/v2"
	"slices"
)

// Selection describes the outcome of a successful pick.
type Selection struct {
	// Index is the position of the chosen quote in the set.
	Index int

	// Quote is the chosen quote, already marked used.
	Quote Quote

	// Reset reports whether eligibility was reset before choosing.
	Reset bool
}

// Selector implements the rotation state machine over a QuoteSet.
// A quote is eligible while unused; once the eligible pool is empty the
// relevant scope (whole set, or one theme) is reset and selection retries.
type Selector struct {
	intn func(n int) int
}

// NewSelector returns a Selector backed by the global math/rand source.
func NewSelector() *Selector {
	return &Selector{intn: rand.IntN}
}

// NewSelectorWithRand returns a Selector that draws from r.
// Tests use a seeded source for reproducible picks.
func NewSelectorWithRand(r *rand.Rand) *Selector {
	return &Selector{intn: r.IntN}
}

// Select picks a uniformly random unused quote from the whole set and marks it used.
// When every quote is used, all are reset first. An empty set yields ErrNoQuotesForSelection
// and leaves set untouched.
func (s *Selector) Select(set QuoteSet) (Selection, error) {
	return s.pick(set, func(Quote) bool { return true }, "")
}

// SelectTheme is Select restricted to quotes tagged with theme.
// Exhaustion resets only that theme's quotes; other themes are never touched
// and never used as a fallback.
func (s *Selector) SelectTheme(set QuoteSet, theme string) (Selection, error) {
	return s.pick(set, func(q Quote) bool { return q.Theme == theme }, theme)
}

func (s *Selector) pick(set QuoteSet, inScope func(Quote) bool, theme string) (Selection, error) {
	eligible := make([]int, 0, len(set))
	scope := make([]int, 0, len(set))

	for i, q := range set {
		if !inScope(q) {
			continue
		}

		scope = append(scope, i)
		if !q.Used {
			eligible = append(eligible, i)
		}
	}

	if len(scope) == 0 {
		return Selection{}, NewNoQuotesError(theme)
	}

	reset := false
	if len(eligible) == 0 {
		for _, i := range scope {
			set[i].Used = false
		}

		eligible = scope
		reset = true
	}

	idx := eligible[s.intn(len(eligible))]
	set[idx].Used = true

	return Selection{Index: idx, Quote: set[idx], Reset: reset}, nil
}

// PickTheme returns a uniformly random theme among those present in set.
// Every theme has equal weight regardless of how many quotes it holds.
func (s *Selector) PickTheme(set QuoteSet) (string, error) {
	themes := Themes(set)
	if len(themes) == 0 {
		return "", NewNoQuotesError("")
	}

	return themes[s.intn(len(themes))], nil
}

// Themes returns the distinct themes present in set, sorted.
func Themes(set QuoteSet) []string {
	seen := make(map[string]struct{}, len(set))
	themes := make([]string, 0, len(set))

	for _, q := range set {
		if _, ok := seen[q.Theme]; ok {
			continue
		}

		seen[q.Theme] = struct{}{}
		themes = append(themes, q.Theme)
	}

	slices.Sort(themes)

	return themes
}
