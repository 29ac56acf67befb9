package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/LinkTrace/internal/app/model"
	"github.com/sifan077/LinkTrace/internal/app/repository"
)

// LinkReport is the read-only analytics projection for one link.
type LinkReport struct {
	Code       string        `json:"code"`
	TargetURL  string        `json:"target_url"`
	Tier       model.Tier    `json:"tier"`
	VisitCount int64         `json:"visit_count"`
	Visits     []model.Visit `json:"visits"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
}

// AnalyticsService aggregates stored links and their visit histories.
// Pure reads; no mutation, no side effects.
type AnalyticsService interface {
	Report(ctx context.Context, code string) (*LinkReport, error)
	ListByOwner(ctx context.Context, ownerID string) ([]LinkReport, error)
}

type analyticsService struct {
	links       repository.LinkRepository
	visits      repository.VisitRepository
	recentLimit int
}

// NewAnalyticsService returns an analytics reader surfacing at most
// recentLimit visits per link.
func NewAnalyticsService(links repository.LinkRepository, visits repository.VisitRepository, recentLimit int) AnalyticsService {
	if recentLimit <= 0 {
		recentLimit = 100
	}
	return &analyticsService{
		links:       links,
		visits:      visits,
		recentLimit: recentLimit,
	}
}

func (s *analyticsService) Report(ctx context.Context, code string) (*LinkReport, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	// Expired-but-unreaped links are indistinguishable from deleted ones.
	if link.Expired(time.Now()) {
		return nil, repository.ErrLinkNotFound
	}
	return s.buildReport(ctx, link)
}

func (s *analyticsService) ListByOwner(ctx context.Context, ownerID string) ([]LinkReport, error) {
	links, err := s.links.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	reports := make([]LinkReport, 0, len(links))
	for i := range links {
		report, err := s.buildReport(ctx, &links[i])
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

func (s *analyticsService) buildReport(ctx context.Context, link *model.Link) (*LinkReport, error) {
	count, err := s.visits.CountByLink(ctx, link.Code)
	if err != nil {
		return nil, fmt.Errorf("count visits: %w", err)
	}
	visits, err := s.visits.ListRecent(ctx, link.Code, s.recentLimit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	if visits == nil {
		visits = []model.Visit{}
	}

	return &LinkReport{
		Code:       link.Code,
		TargetURL:  link.TargetURL,
		Tier:       link.Tier,
		VisitCount: count,
		Visits:     visits,
		CreatedAt:  link.CreatedAt,
		ExpiresAt:  link.ExpiresAt,
	}, nil
}
