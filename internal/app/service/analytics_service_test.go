package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sifan077/LinkTrace/internal/app/model"
	"github.com/sifan077/LinkTrace/internal/app/repository"
)

func seedVisits(t *testing.T, repo *memVisitRepo, code string, n int) {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := repo.Append(context.Background(), &model.Visit{
			LinkCode:  code,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Address:   "203.0.113.9",
		})
		if err != nil {
			t.Fatalf("seed visit: %v", err)
		}
	}
}

func TestReport_AggregatesVisits(t *testing.T) {
	links := newMemLinkRepo()
	links.links["abc123"] = model.Link{
		Code:      "abc123",
		TargetURL: "https://example.com",
		Tier:      model.TierPremium,
		CreatedAt: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	visits := newMemVisitRepo("abc123")
	seedVisits(t, visits, "abc123", 5)

	svc := NewAnalyticsService(links, visits, 100)
	report, err := svc.Report(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Report error: %v", err)
	}
	if report.VisitCount != 5 {
		t.Fatalf("expected visit count 5, got %d", report.VisitCount)
	}
	if len(report.Visits) != 5 {
		t.Fatalf("expected 5 visits, got %d", len(report.Visits))
	}
	if report.TargetURL != "https://example.com" || report.Tier != model.TierPremium {
		t.Fatalf("link fields not carried through: %+v", report)
	}
}

func TestReport_RecentVisitsBounded(t *testing.T) {
	links := newMemLinkRepo()
	links.links["abc123"] = model.Link{Code: "abc123", TargetURL: "https://example.com"}
	visits := newMemVisitRepo("abc123")
	seedVisits(t, visits, "abc123", 30)

	svc := NewAnalyticsService(links, visits, 10)
	report, err := svc.Report(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Report error: %v", err)
	}
	if report.VisitCount != 30 {
		t.Fatalf("count must cover all visits, got %d", report.VisitCount)
	}
	if len(report.Visits) != 10 {
		t.Fatalf("expected the 10 most recent visits, got %d", len(report.Visits))
	}
	// The bounded window keeps the newest entries, oldest first.
	for i := 1; i < len(report.Visits); i++ {
		if report.Visits[i].Timestamp.Before(report.Visits[i-1].Timestamp) {
			t.Fatal("visits must be in chronological order")
		}
	}
	if report.Visits[0].ID != 21 {
		t.Fatalf("expected window to start at visit 21, got %d", report.Visits[0].ID)
	}
}

func TestReport_UnknownCode(t *testing.T) {
	svc := NewAnalyticsService(newMemLinkRepo(), newMemVisitRepo(), 100)

	_, err := svc.Report(context.Background(), "missing1")
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestReport_ExpiredLinkIsNotFound(t *testing.T) {
	links := newMemLinkRepo()
	past := time.Now().Add(-time.Minute)
	links.links["expired1"] = model.Link{
		Code:      "expired1",
		TargetURL: "https://example.com",
		ExpiresAt: &past,
	}

	svc := NewAnalyticsService(links, newMemVisitRepo("expired1"), 100)
	_, err := svc.Report(context.Background(), "expired1")
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expired link must report as not found, got %v", err)
	}
}

func TestReport_NoVisitsYieldsEmptySlice(t *testing.T) {
	links := newMemLinkRepo()
	links.links["abc123"] = model.Link{Code: "abc123", TargetURL: "https://example.com"}

	svc := NewAnalyticsService(links, newMemVisitRepo("abc123"), 100)
	report, err := svc.Report(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Report error: %v", err)
	}
	if report.Visits == nil {
		t.Fatal("visits must be an empty slice, not nil")
	}
	if report.VisitCount != 0 {
		t.Fatalf("expected zero visits, got %d", report.VisitCount)
	}
}

func TestListByOwner_ReportsEveryLink(t *testing.T) {
	links := newMemLinkRepo()
	owner := "u1"
	links.links["first001"] = model.Link{
		Code:      "first001",
		TargetURL: "https://a.test",
		OwnerID:   &owner,
		Tier:      model.TierPremium,
		CreatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	links.links["second02"] = model.Link{
		Code:      "second02",
		TargetURL: "https://b.test",
		OwnerID:   &owner,
		Tier:      model.TierPremium,
		CreatedAt: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	other := "u2"
	links.links["foreign1"] = model.Link{
		Code:      "foreign1",
		TargetURL: "https://c.test",
		OwnerID:   &other,
		Tier:      model.TierPremium,
	}

	visits := newMemVisitRepo("first001", "second02")
	seedVisits(t, visits, "first001", 3)

	svc := NewAnalyticsService(links, visits, 100)
	reports, err := svc.ListByOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("ListByOwner error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	byCode := map[string]LinkReport{}
	for _, r := range reports {
		byCode[r.Code] = r
	}
	if byCode["first001"].VisitCount != 3 {
		t.Fatalf("expected 3 visits on first001, got %d", byCode["first001"].VisitCount)
	}
	if byCode["second02"].VisitCount != 0 {
		t.Fatalf("expected 0 visits on second02, got %d", byCode["second02"].VisitCount)
	}
	if _, ok := byCode["foreign1"]; ok {
		t.Fatal("a foreign owner's link leaked into the listing")
	}
}
