package triage

import (
	"fmt"
	"strings"

	"github.com/Bhavesh398/prioritygate/internal/scoring"
)

const snippetLen = 100

func snippet(text string) string {
	if text == "" {
		return "N/A"
	}
	if len(text) <= snippetLen {
		return text
	}
	return text[:snippetLen] + "..."
}

func analysisPrompt(text string) string {
	return fmt.Sprintf(`Analyze this government grievance complaint and provide:
1. Category (water, roads, electricity, etc.)
2. Severity (low, medium, high, urgent)
3. Key issue
4. Suggested resolution

Complaint: %s`, text)
}

func actionPlanPrompt(sorted []scoring.Scored) string {
	var sb strings.Builder
	sb.WriteString("Complaints by Priority:\n\n")
	for i, sc := range sorted {
		category := scoring.Categorize(sc.PriorityScore)
		fmt.Fprintf(&sb, "%d. [%s] Score: %d/240 - %s\n", i+1, category, sc.PriorityScore, snippet(sc.Text))
	}

	return fmt.Sprintf(`Based on these priority-scored complaints, generate an action plan:

%s

Provide:
1. Top 3 immediate actions (CRITICAL priority)
2. Resource allocation by department
3. Timeline for resolution
4. Risk mitigation strategies
5. Quick wins (24h resolution possible)`, sb.String())
}

func insightsPrompt(texts []string) string {
	var sb strings.Builder
	for _, t := range texts {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteString("\n")
	}

	return fmt.Sprintf(`Based on these citizen complaints, provide:
1. Top 3 priority areas
2. Recommended resource allocation
3. Quick wins (resolvable within 24h)
4. Preventive measures

Complaints:
%s`, sb.String())
}
