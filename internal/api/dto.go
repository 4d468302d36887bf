package api

import (
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
)

type periodResponse struct {
	domain.Period
	State domain.PeriodState `json:"state"`
}

func newPeriodResponse(p *domain.Period, now int64) periodResponse {
	return periodResponse{Period: *p, State: p.State(now)}
}

type trackerResponse struct {
	domain.Tracker
	Current periodResponse `json:"current"`
}

type contributorResponse struct {
	domain.Contributor
	NeverClaimed bool   `json:"never_claimed"`
	Balance      uint64 `json:"balance"`
}

// contributionResponse отдаёт категорию и серьёзность именами, а не номерами.
type contributionResponse struct {
	ID          string        `json:"id"`
	Contributor string        `json:"contributor"`
	Period      uint64        `json:"period"`
	Category    string        `json:"category"`
	Severity    string        `json:"severity"`
	Points      uint8         `json:"points"`
	Timestamp   int64         `json:"timestamp"`
	Description string        `json:"description"`
	Status      domain.Status `json:"status"`
}

func newContributionResponses(list []*domain.Contribution) []contributionResponse {
	out := make([]contributionResponse, 0, len(list))
	for _, c := range list {
		out = append(out, contributionResponse{
			ID:          c.ID.String(),
			Contributor: c.Contributor,
			Period:      c.Period,
			Category:    c.Category.String(),
			Severity:    c.Severity.String(),
			Points:      c.Points,
			Timestamp:   c.Timestamp,
			Description: c.Description,
			Status:      c.Status,
		})
	}
	return out
}
