package engine

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"

	dbpkg "priceintel/internal/db"
)

// MatcherConfig is the static configuration of the item matcher. The synonym
// and keyword tables are injected rather than package-global so deployments
// can vary them and tests can use fixtures.
type MatcherConfig struct {
	// SearchFloor is the minimum fuzzy score for a canonical item to be
	// considered a candidate at all.
	SearchFloor float64

	// AcceptThreshold is the minimum fuzzy score at which the best candidate
	// is reused. Candidates in [SearchFloor, AcceptThreshold) are logged as
	// near misses and a new canonical item is created instead.
	AcceptThreshold float64

	// UnitSynonyms maps unit spellings to their canonical form, e.g. lbs -> pound.
	UnitSynonyms map[string]string

	// CategoryRules guess a category for newly created canonical items by
	// keyword lookup, first rule wins.
	CategoryRules []CategoryRule
}

// CategoryRule assigns a category when any keyword occurs in the name.
type CategoryRule struct {
	Keywords []string
	Category string
}

// DefaultMatcherConfig returns the stock synonym and keyword tables with the
// given thresholds.
func DefaultMatcherConfig(searchFloor, acceptThreshold float64) MatcherConfig {
	return MatcherConfig{
		SearchFloor:     searchFloor,
		AcceptThreshold: acceptThreshold,
		UnitSynonyms: map[string]string{
			"lb": "pound", "lbs": "pound", "pound": "pound", "pounds": "pound",
			"case": "case", "cs": "case", "cases": "case",
			"oz": "ounce", "ounce": "ounce", "ounces": "ounce",
			"each": "each", "ea": "each", "piece": "each", "pieces": "each", "pcs": "each",
			"gal": "gallon", "gallon": "gallon", "gallons": "gallon",
			"doz": "dozen", "dozen": "dozen",
		},
		CategoryRules: []CategoryRule{
			{Keywords: []string{"tomato", "onion", "pepper", "lettuce", "carrot"}, Category: "Vegetables"},
			{Keywords: []string{"chicken", "beef", "pork", "turkey"}, Category: "Proteins"},
			{Keywords: []string{"salmon", "fish", "shrimp", "tuna"}, Category: "Seafood"},
			{Keywords: []string{"cheese", "milk", "cream", "butter"}, Category: "Dairy"},
			{Keywords: []string{"flour", "bread", "rice", "pasta"}, Category: "Grains"},
			{Keywords: []string{"oil", "vinegar", "sauce", "spice", "salt"}, Category: "Condiments"},
		},
	}
}

// Matcher resolves an incoming (item name, unit, category hint) to a
// canonical cross-vendor item within a tenant.
type Matcher struct {
	catalog CatalogStore
	cfg     MatcherConfig
	log     *logrus.Logger
}

func NewMatcher(catalog CatalogStore, cfg MatcherConfig, log *logrus.Logger) *Matcher {
	return &Matcher{catalog: catalog, cfg: cfg, log: log}
}

// Resolve returns the canonical item id for the incoming item, creating a new
// canonical item when no existing one matches with sufficient confidence.
// It never crosses tenants and fails only on storage errors.
func (m *Matcher) Resolve(tenantID, name, unit, categoryHint string) (uint, error) {
	normalized := NormalizeName(name)

	if exact, err := m.catalog.FindCanonicalByNormalizedName(tenantID, normalized); err != nil {
		return 0, fmt.Errorf("exact match lookup: %w", err)
	} else if exact != nil {
		matchDecisions.WithLabelValues("exact").Inc()
		m.logDecision(tenantID, name, exact.ID, "exact", 1)
		return exact.ID, nil
	}

	candidates, err := m.catalog.ListCanonicalItems(tenantID)
	if err != nil {
		return 0, fmt.Errorf("list canonical items: %w", err)
	}

	normUnit := m.NormalizeUnit(unit)
	var best *dbpkg.CanonicalItem
	bestScore := 0.0
	for i := range candidates {
		c := &candidates[i]
		score := m.score(normalized, normUnit, categoryHint, c)
		if score >= m.cfg.SearchFloor && score > bestScore {
			best = c
			bestScore = score
		}
	}

	if best != nil {
		matchScores.Observe(bestScore)
		if bestScore >= m.cfg.AcceptThreshold {
			matchDecisions.WithLabelValues("fuzzy").Inc()
			m.logDecision(tenantID, name, best.ID, "fuzzy", bestScore)
			return best.ID, nil
		}
		matchDecisions.WithLabelValues("near_miss").Inc()
		m.logDecision(tenantID, name, best.ID, "near_miss", bestScore)
	}

	category := categoryHint
	if category == "" {
		category = m.GuessCategory(normalized)
	}
	created := &dbpkg.CanonicalItem{
		TenantID:       tenantID,
		NormalizedName: normalized,
		DisplayName:    strings.TrimSpace(name),
		Category:       category,
		Unit:           normUnit,
	}
	if err := m.catalog.CreateCanonicalItem(created); err != nil {
		return 0, fmt.Errorf("create canonical item: %w", err)
	}
	matchDecisions.WithLabelValues("created").Inc()
	m.logDecision(tenantID, name, created.ID, "created", bestScore)
	return created.ID, nil
}

func (m *Matcher) logDecision(tenantID, name string, canonicalID uint, kind string, score float64) {
	m.log.WithFields(logrus.Fields{
		"tenant":    tenantID,
		"name":      name,
		"canonical": canonicalID,
		"decision":  kind,
		"score":     score,
	}).Debug("canonical item resolved")
}

// score combines name similarity (70%), unit match (20%) and category match
// (10%) against one candidate.
func (m *Matcher) score(normalized, normUnit, categoryHint string, c *dbpkg.CanonicalItem) float64 {
	s := 0.7 * nameSimilarity(normalized, c.NormalizedName)
	if normUnit != "" && normUnit == m.NormalizeUnit(c.Unit) {
		s += 0.2
	}
	if categoryHint != "" && strings.EqualFold(categoryHint, c.Category) {
		s += 0.1
	}
	return s
}

// NormalizeName lowercases, strips non-alphanumeric characters and collapses
// whitespace.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeUnit maps a unit spelling to its canonical form, passing unknown
// units through lowercased.
func (m *Matcher) NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	if canon, ok := m.cfg.UnitSynonyms[u]; ok {
		return canon
	}
	return u
}

// GuessCategory assigns a category for a new canonical item by keyword
// lookup, defaulting to Other.
func (m *Matcher) GuessCategory(normalizedName string) string {
	for _, rule := range m.cfg.CategoryRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(normalizedName, kw) {
				return rule.Category
			}
		}
	}
	return "Other"
}

// nameSimilarity is the better of word-overlap ratio and Levenshtein
// similarity over two normalized names.
func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	overlap := wordOverlapRatio(a, b)
	lev := levenshteinSimilarity(a, b)
	if lev > overlap {
		return lev
	}
	return overlap
}

// wordOverlapRatio is the fraction of words in either name that occur as a
// substring of some word in the other.
func wordOverlapRatio(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	matched := 0
	for _, w := range wordsA {
		if wordInAny(w, wordsB) {
			matched++
		}
	}
	for _, w := range wordsB {
		if wordInAny(w, wordsA) {
			matched++
		}
	}
	return float64(matched) / float64(len(wordsA)+len(wordsB))
}

func wordInAny(w string, words []string) bool {
	for _, other := range words {
		if strings.Contains(other, w) {
			return true
		}
	}
	return false
}

// levenshteinSimilarity is 1 - editDistance/max(len) over runes.
func levenshteinSimilarity(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	if max == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(max)
}
