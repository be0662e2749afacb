// Package triage composes the priority scorer with rate-limited calls to the
// AI backend: complaints are ranked first, and only the highest-priority ones
// spend outbound quota.
package triage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Bhavesh398/prioritygate/internal/ratelimit"
	"github.com/Bhavesh398/prioritygate/internal/scoring"
)

const (
	// analysisLimit caps how many complaints of a batch get an AI pass
	analysisLimit = 20
	// planLimit caps how many complaints are quoted in an action plan prompt
	planLimit = 10
)

// Generator produces text for a prompt. Satisfied by *gemini.Client.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	gen     Generator
	limiter *ratelimit.Limiter
	scorer  *scoring.Scorer
	log     zerolog.Logger
}

func New(gen Generator, limiter *ratelimit.Limiter, scorer *scoring.Scorer, log zerolog.Logger) *Service {
	return &Service{
		gen:     gen,
		limiter: limiter,
		scorer:  scorer,
		log:     log.With().Str("component", "triage").Logger(),
	}
}

// Ranked is a scored complaint with its category label attached.
type Ranked struct {
	scoring.Scored
	PriorityCategory string `json:"priority_category"`
}

// Analysis is the full triage result for one complaint.
type Analysis struct {
	ComplaintID      string            `json:"complaint_id"`
	PriorityScore    int               `json:"priority_score"`
	PriorityCategory string            `json:"priority_category"`
	Breakdown        scoring.Breakdown `json:"priority_breakdown"`
	AIAnalysis       string            `json:"ai_analysis"`
	Metadata         Metadata          `json:"metadata"`
}

type Metadata struct {
	CreatedAt      string `json:"created_at"`
	Status         string `json:"status"`
	AffectedPeople int    `json:"affected_people"`
	Location       string `json:"location,omitempty"`
}

// Rank scores and orders complaints without touching the AI backend.
func (s *Service) Rank(complaints []scoring.Complaint) []Ranked {
	scored := s.scorer.ScoreAndSort(complaints)
	ranked := make([]Ranked, len(scored))
	for i, sc := range scored {
		ranked[i] = Ranked{Scored: sc, PriorityCategory: scoring.Categorize(sc.PriorityScore)}
	}
	return ranked
}

// generate runs one prompt through the admission gate.
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := s.limiter.Do(ctx, func() error {
		text, err := s.gen.GenerateContent(ctx, prompt)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return out, nil
}

// AnalyzeComplaint scores one complaint and asks the AI backend for an
// assessment of its text.
func (s *Service) AnalyzeComplaint(ctx context.Context, c scoring.Complaint) (Analysis, error) {
	scored := s.scorer.Score(c)
	category := scoring.Categorize(scored.PriorityScore)

	s.log.Debug().
		Str("complaint_id", c.ID).
		Int("score", scored.PriorityScore).
		Str("category", category).
		Msg("analyzing complaint")

	text, err := s.generate(ctx, analysisPrompt(c.Text))
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze complaint %s: %w", c.ID, err)
	}

	return Analysis{
		ComplaintID:      c.ID,
		PriorityScore:    scored.PriorityScore,
		PriorityCategory: category,
		Breakdown:        scored.Breakdown,
		AIAnalysis:       text,
		Metadata: Metadata{
			CreatedAt:      c.CreatedAt,
			Status:         c.Status,
			AffectedPeople: c.AffectedPeople,
			Location:       c.Location,
		},
	}, nil
}

// AnalyzeBatch ranks a batch and analyzes the top complaints in priority
// order. Results keep that order.
func (s *Service) AnalyzeBatch(ctx context.Context, complaints []scoring.Complaint) ([]Analysis, error) {
	sorted := s.scorer.ScoreAndSort(complaints)
	if len(sorted) > analysisLimit {
		sorted = sorted[:analysisLimit]
	}

	analyses := make([]Analysis, 0, len(sorted))
	for _, sc := range sorted {
		a, err := s.AnalyzeComplaint(ctx, sc.Complaint)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, nil
}

// ActionPlan asks the AI backend for a resolution plan built from the
// highest-priority complaints.
func (s *Service) ActionPlan(ctx context.Context, complaints []scoring.Complaint) (string, error) {
	sorted := s.scorer.ScoreAndSort(complaints)
	if len(sorted) > planLimit {
		sorted = sorted[:planLimit]
	}
	return s.generate(ctx, actionPlanPrompt(sorted))
}

// Insights summarizes raw complaint texts into priority areas and
// recommendations.
func (s *Service) Insights(ctx context.Context, texts []string) (string, error) {
	return s.generate(ctx, insightsPrompt(texts))
}
