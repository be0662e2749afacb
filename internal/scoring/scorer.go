// Package scoring ranks complaints by a composite urgency score built from
// four independently capped components: priority level, status, age, and
// affected population. Scores range 0-240.
package scoring

import (
	"sort"
	"strings"
	"time"
)

// Complaint is the upstream work item. Fields arrive as loose strings from
// the intake source and are never mutated here.
type Complaint struct {
	ID             string `json:"id"`
	Text           string `json:"complaint_text"`
	Priority       string `json:"priority"`        // urgent|high|medium|low
	Status         string `json:"status"`          // escalated|open|pending|resolved
	CreatedAt      string `json:"created_at"`      // RFC 3339
	AffectedPeople int    `json:"affected_people"`
	Category       string `json:"category,omitempty"`
	Location       string `json:"location,omitempty"`
}

// Breakdown keeps each component score alongside the total.
type Breakdown struct {
	PriorityLevel    int `json:"priority_level"`
	Status           int `json:"status"`
	Age              int `json:"age"`
	PopulationImpact int `json:"population_impact"`
	Total            int `json:"total"`
}

// Scored is a complaint enriched with its score; created fresh per scoring
// pass and never mutated afterwards.
type Scored struct {
	Complaint
	PriorityScore int       `json:"priority_score"`
	Breakdown     Breakdown `json:"priority_breakdown"`
}

// Weights holds the scoring tables. Keeping them as data rather than
// constants lets tests and future config swap in alternate sets.
type Weights struct {
	Priority map[string]int
	Status   map[string]int

	AgeMultiplier int
	AgeMax        int

	PopulationMultiplier int
	PopulationMax        int
}

func DefaultWeights() Weights {
	return Weights{
		Priority: map[string]int{
			"urgent": 100,
			"high":   75,
			"medium": 50,
			"low":    25,
		},
		Status: map[string]int{
			"escalated": 50,
			"open":      30,
			"pending":   20,
			"resolved":  0,
		},
		AgeMultiplier:        5,
		AgeMax:               50,
		PopulationMultiplier: 2,
		PopulationMax:        40,
	}
}

// Scorer computes scores with a fixed weight set. It holds no mutable state
// and is safe for concurrent use.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

func New(w Weights) *Scorer {
	return &Scorer{weights: w, now: time.Now}
}

// Category labels, highest first.
const (
	CategoryCritical = "CRITICAL"
	CategoryHigh     = "HIGH"
	CategoryMedium   = "MEDIUM"
	CategoryLow      = "LOW"
	CategoryMinimal  = "MINIMAL"
)

// Categorize maps a composite score onto its label. Thresholds are
// inclusive lower bounds.
func Categorize(score int) string {
	switch {
	case score >= 200:
		return CategoryCritical
	case score >= 150:
		return CategoryHigh
	case score >= 100:
		return CategoryMedium
	case score >= 50:
		return CategoryLow
	default:
		return CategoryMinimal
	}
}

// Score computes the composite score for one complaint. Missing or
// malformed fields degrade to their documented defaults; Score never fails.
func (s *Scorer) Score(c Complaint) Scored {
	priority := s.priorityWeight(c.Priority)
	status := s.statusWeight(c.Status)
	age := s.ageScore(c.CreatedAt)
	population := s.populationScore(c.AffectedPeople)

	total := priority + status + age + population
	return Scored{
		Complaint:     c,
		PriorityScore: total,
		Breakdown: Breakdown{
			PriorityLevel:    priority,
			Status:           status,
			Age:              age,
			PopulationImpact: population,
			Total:            total,
		},
	}
}

// ScoreAndSort scores every complaint and orders the result by descending
// score. The sort is stable: equal scores keep their input order.
func (s *Scorer) ScoreAndSort(complaints []Complaint) []Scored {
	scored := make([]Scored, 0, len(complaints))
	for _, c := range complaints {
		scored = append(scored, s.Score(c))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].PriorityScore > scored[j].PriorityScore
	})
	return scored
}

func (s *Scorer) priorityWeight(level string) int {
	if level == "" {
		level = "low"
	}
	return s.weights.Priority[strings.ToLower(level)]
}

func (s *Scorer) statusWeight(status string) int {
	if status == "" {
		status = "pending"
	}
	return s.weights.Status[strings.ToLower(status)]
}

// ageScore awards points per whole day since creation, capped. A timestamp
// that cannot be parsed scores 0.
func (s *Scorer) ageScore(createdAt string) int {
	created, ok := parseTimestamp(createdAt)
	if !ok {
		return 0
	}
	days := int(s.now().Sub(created).Hours() / 24)
	if days <= 0 {
		return 0
	}
	return minInt(days*s.weights.AgeMultiplier, s.weights.AgeMax)
}

func (s *Scorer) populationScore(affected int) int {
	if affected <= 0 {
		return 0
	}
	return minInt(affected*s.weights.PopulationMultiplier, s.weights.PopulationMax)
}

// timestampLayouts covers what intake actually sends: full RFC 3339, a
// zone-less variant, and a bare date.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
