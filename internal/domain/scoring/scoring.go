// Package scoring computes the deterministic compatibility score between two
// user profiles and ranks match candidates by it.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Weights of the three sub-scores and of the reputation sub-terms. These are
// fixed so scores stay comparable across deployments.
const (
	keywordWeight    = 0.5
	riskWeight       = 0.3
	reputationWeight = 0.2

	closenessWeight = 0.6
	averageWeight   = 0.4

	maxScore = 100
)

// Default configuration constants.
const (
	defaultReputationScale = 1000
	DefaultMinMatchScore   = 30
	DefaultMinReputation   = 20
)

// ErrUnknownRiskCategory is returned when parsing an unsupported category.
var ErrUnknownRiskCategory = errors.New("unknown risk category")

// RiskCategory is an ordered investment-risk profile.
type RiskCategory int

// Risk categories, ordered Conservative < Balanced < Aggressive.
const (
	Conservative RiskCategory = iota
	Balanced
	Aggressive
)

var riskNames = [...]string{"Conservative", "Balanced", "Aggressive"}

func (r RiskCategory) String() string {
	if r < Conservative || r > Aggressive {
		return fmt.Sprintf("RiskCategory(%d)", int(r))
	}
	return riskNames[r]
}

// ParseRiskCategory parses a category name case-insensitively.
func ParseRiskCategory(s string) (RiskCategory, error) {
	for i, name := range riskNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return RiskCategory(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRiskCategory, s)
}

// Profile is the compatibility input for one user.
type Profile struct {
	RiskCategory RiskCategory
	Keywords     []string
	Reputation   int
}

// Candidate is a scored match candidate.
type Candidate struct {
	ID         string
	Profile    Profile
	MatchScore int
}

// Option applies a configuration option to the CompatibilityScorer.
type Option func(*CompatibilityScorer)

// WithReputationScale sets the value reputations are normalized by.
func WithReputationScale(scale float64) Option {
	return func(s *CompatibilityScorer) {
		if scale > 0 {
			s.reputationScale = scale
		}
	}
}

// WithThresholds sets the default candidate filter thresholds.
func WithThresholds(minMatchScore, minReputation int) Option {
	return func(s *CompatibilityScorer) {
		s.minMatchScore = minMatchScore
		s.minReputation = minReputation
	}
}

// Scorer computes a symmetric 0..100 compatibility score.
type Scorer interface {
	Score(a, b Profile) int
}

// CompatibilityScorer implements Scorer. It is stateless after construction
// and safe for concurrent use.
type CompatibilityScorer struct {
	reputationScale float64
	minMatchScore   int
	minReputation   int
}

// NewCompatibilityScorer creates a scorer with configuration options.
func NewCompatibilityScorer(opts ...Option) *CompatibilityScorer {
	s := &CompatibilityScorer{
		reputationScale: defaultReputationScale,
		minMatchScore:   DefaultMinMatchScore,
		minReputation:   DefaultMinReputation,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns round(100 * (0.5*keyword + 0.3*risk + 0.2*reputation)).
func (s *CompatibilityScorer) Score(a, b Profile) int {
	raw := keywordWeight*KeywordSimilarity(a.Keywords, b.Keywords) +
		riskWeight*RiskMatch(a.RiskCategory, b.RiskCategory) +
		reputationWeight*s.ReputationNorm(a.Reputation, b.Reputation)

	score := int(math.Round(raw * maxScore))
	return min(maxScore, max(0, score))
}

// KeywordSimilarity is the Jaccard index of the lower-cased keyword sets,
// 0 when both sets are empty.
func KeywordSimilarity(a, b []string) float64 {
	setA := keywordSet(a)
	setB := keywordSet(b)

	union := len(setA)
	intersection := 0
	for k := range setB {
		if _, ok := setA[k]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func keywordSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		set[strings.ToLower(k)] = struct{}{}
	}
	return set
}

// RiskMatch is 1.0 for equal categories, 0.5 for adjacent ones and 0.2 for
// categories two steps apart.
func RiskMatch(a, b RiskCategory) float64 {
	switch d := a - b; {
	case d == 0:
		return 1.0
	case d == 1 || d == -1:
		return 0.5
	default:
		return 0.2
	}
}

// ReputationNorm rewards close reputations and a high average:
// 0.6*(1 - |a-b|/scale) + 0.4*((a+b)/2/scale), clamped to [0,1].
func (s *CompatibilityScorer) ReputationNorm(a, b int) float64 {
	diff := math.Abs(float64(a - b))
	closeness := 1 - diff/s.reputationScale
	average := (float64(a+b) / 2) / s.reputationScale

	norm := closenessWeight*closeness + averageWeight*average
	return math.Min(1, math.Max(0, norm))
}

// Rank scores every candidate against current and returns them sorted by
// descending score. The sort is stable, so ties keep their input order.
func (s *CompatibilityScorer) Rank(current Profile, candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.MatchScore = s.Score(current, c.Profile)
		ranked[i] = c
	}
	slices.SortStableFunc(ranked, func(x, y Candidate) int {
		return y.MatchScore - x.MatchScore
	})
	return ranked
}

// Filter drops candidates whose score or reputation is below the
// thresholds. Negative thresholds fall back to the scorer's defaults.
func (s *CompatibilityScorer) Filter(candidates []Candidate, minMatchScore, minReputation int) []Candidate {
	if minMatchScore < 0 {
		minMatchScore = s.minMatchScore
	}
	if minReputation < 0 {
		minReputation = s.minReputation
	}
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.MatchScore >= minMatchScore && c.Profile.Reputation >= minReputation {
			kept = append(kept, c)
		}
	}
	return kept
}
