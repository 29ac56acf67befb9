package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sifan077/LinkTrace/internal/app/model"
	"github.com/sifan077/LinkTrace/internal/app/repository"
	"go.uber.org/zap"
)

// memVisitRepo is an in-memory VisitRepository keyed by link code.
type memVisitRepo struct {
	mu     sync.Mutex
	live   map[string]bool
	visits map[string][]model.Visit
	nextID int64
}

func newMemVisitRepo(liveCodes ...string) *memVisitRepo {
	live := make(map[string]bool, len(liveCodes))
	for _, code := range liveCodes {
		live[code] = true
	}
	return &memVisitRepo{
		live:   live,
		visits: make(map[string][]model.Visit),
	}
}

func (m *memVisitRepo) Append(_ context.Context, visit *model.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live[visit.LinkCode] {
		return repository.ErrLinkNotFound
	}
	m.nextID++
	visit.ID = m.nextID
	m.visits[visit.LinkCode] = append(m.visits[visit.LinkCode], *visit)
	return nil
}

func (m *memVisitRepo) ListRecent(_ context.Context, linkCode string, limit int) ([]model.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.visits[linkCode]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]model.Visit(nil), all...), nil
}

func (m *memVisitRepo) CountByLink(_ context.Context, linkCode string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.visits[linkCode])), nil
}

func (m *memVisitRepo) stored(code string) []model.Visit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Visit(nil), m.visits[code]...)
}

// stubEnricher implements GeoEnricher with overridable behaviour.
type stubEnricher struct {
	lookupFn  func(ctx context.Context, address string) (model.Location, error)
	reverseFn func(ctx context.Context, lat, lon float64) (model.Location, error)
}

func (s *stubEnricher) Lookup(ctx context.Context, address string) (model.Location, error) {
	if s.lookupFn == nil {
		return model.Location{}, errors.New("lookup not stubbed")
	}
	return s.lookupFn(ctx, address)
}

func (s *stubEnricher) ReverseLookup(ctx context.Context, lat, lon float64) (model.Location, error) {
	if s.reverseFn == nil {
		return model.Location{}, errors.New("reverse lookup not stubbed")
	}
	return s.reverseFn(ctx, lat, lon)
}

func floatPtr(f float64) *float64 { return &f }

func TestRecord_StoresEnrichedVisit(t *testing.T) {
	repo := newMemVisitRepo("abc123")
	enricher := &stubEnricher{
		lookupFn: func(_ context.Context, address string) (model.Location, error) {
			if address != "203.0.113.9" {
				t.Fatalf("unexpected lookup address %q", address)
			}
			return model.Location{City: "Berlin", Region: "Berlin", Country: "Germany"}, nil
		},
	}
	recorder := NewVisitRecorder(zap.NewNop(), repo, enricher)

	err := recorder.Record(context.Background(), model.VisitEvent{
		LinkCode:   "abc123",
		Address:    "203.0.113.9",
		UserAgent:  "curl/8.0",
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}

	visits := repo.stored("abc123")
	if len(visits) != 1 {
		t.Fatalf("expected 1 visit, got %d", len(visits))
	}
	if visits[0].Location == nil || visits[0].Location.City != "Berlin" {
		t.Fatalf("expected enriched location, got %+v", visits[0].Location)
	}
	if visits[0].UserAgent != "curl/8.0" {
		t.Fatalf("user agent not carried through: %q", visits[0].UserAgent)
	}
}

func TestRecord_EnrichmentFailureStillRecords(t *testing.T) {
	repo := newMemVisitRepo("abc123")
	enricher := &stubEnricher{
		lookupFn: func(context.Context, string) (model.Location, error) {
			return model.Location{}, errors.New("provider down")
		},
	}
	recorder := NewVisitRecorder(zap.NewNop(), repo, enricher)

	err := recorder.Record(context.Background(), model.VisitEvent{
		LinkCode:   "abc123",
		Address:    "203.0.113.9",
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Record must not propagate enrichment failure: %v", err)
	}

	visits := repo.stored("abc123")
	if len(visits) != 1 {
		t.Fatalf("expected 1 visit, got %d", len(visits))
	}
	loc := visits[0].Location
	if loc == nil || loc.City != "Unknown" || loc.Country != "Unknown" {
		t.Fatalf("expected Unknown location, got %+v", loc)
	}
}

func TestRecord_CoordinatesUseReverseLookup(t *testing.T) {
	repo := newMemVisitRepo("abc123")
	enricher := &stubEnricher{
		reverseFn: func(_ context.Context, lat, lon float64) (model.Location, error) {
			if lat != 52.52 || lon != 13.405 {
				t.Fatalf("unexpected coordinates %f/%f", lat, lon)
			}
			return model.Location{City: "Berlin", Country: "Germany"}, nil
		},
	}
	recorder := NewVisitRecorder(zap.NewNop(), repo, enricher)

	err := recorder.Record(context.Background(), model.VisitEvent{
		LinkCode:   "abc123",
		Address:    "203.0.113.9",
		Lat:        floatPtr(52.52),
		Lon:        floatPtr(13.405),
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}

	visits := repo.stored("abc123")
	if len(visits) != 1 {
		t.Fatalf("expected 1 visit, got %d", len(visits))
	}
	loc := visits[0].Location
	if loc == nil || loc.City != "Berlin" {
		t.Fatalf("expected reverse-geocoded location, got %+v", loc)
	}
	if loc.Lat == nil || *loc.Lat != 52.52 || loc.Lon == nil || *loc.Lon != 13.405 {
		t.Fatalf("coordinates must be preserved on the location, got %+v", loc)
	}
}

func TestRecord_LinkGoneIsSilentNoop(t *testing.T) {
	repo := newMemVisitRepo() // no live links
	enricher := &stubEnricher{
		lookupFn: func(context.Context, string) (model.Location, error) {
			return model.Location{}, nil
		},
	}
	recorder := NewVisitRecorder(zap.NewNop(), repo, enricher)

	err := recorder.Record(context.Background(), model.VisitEvent{
		LinkCode:   "deleted1",
		Address:    "203.0.113.9",
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("recording against a deleted link must be a no-op, got %v", err)
	}
	if len(repo.stored("deleted1")) != 0 {
		t.Fatal("no visit may be stored for a deleted link")
	}
}

func TestRecord_ConcurrentVisitsAllStored(t *testing.T) {
	const n = 50

	repo := newMemVisitRepo("abc123")
	enricher := &stubEnricher{
		lookupFn: func(context.Context, string) (model.Location, error) {
			return model.Location{City: "Berlin", Country: "Germany"}, nil
		},
	}
	recorder := NewVisitRecorder(zap.NewNop(), repo, enricher)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := recorder.Record(context.Background(), model.VisitEvent{
				LinkCode:   "abc123",
				Address:    fmt.Sprintf("203.0.113.%d", i),
				OccurredAt: time.Now(),
			})
			if err != nil {
				t.Errorf("Record error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(repo.stored("abc123")); got != n {
		t.Fatalf("expected %d visits, got %d", n, got)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"203.0.113.9", "203.0.113.9"},
		{"203.0.113.9, 10.0.0.1, 172.16.0.1", "203.0.113.9"},
		{"::ffff:203.0.113.9", "203.0.113.9"},
		{"  ::ffff:203.0.113.9 , 10.0.0.1", "203.0.113.9"},
		{"2001:db8::1", "2001:db8::1"},
		{"", "unknown"},
		{"   ", "unknown"},
	}
	for _, tc := range cases {
		if got := NormalizeAddress(tc.in); got != tc.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
