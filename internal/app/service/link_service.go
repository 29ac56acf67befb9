package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sifan077/LinkTrace/internal/app/model"
	"github.com/sifan077/LinkTrace/internal/app/repository"
)

var (
	// ErrInvalidTarget signals a malformed target URL or a scheme other
	// than http/https. Rejected before any store mutation.
	ErrInvalidTarget = errors.New("invalid target url")
	// ErrGenerationExhausted signals that code generation collided on every
	// retry. This is a configuration-level failure (namespace too small),
	// not a transient one.
	ErrGenerationExhausted = errors.New("code generation exhausted retries")
	// ErrNotOwner signals a delete attempt on a link owned by someone else.
	ErrNotOwner = errors.New("link belongs to another owner")
	// ErrDeleteTokenRequired signals a delete attempt on an anonymous link
	// without the creation-time delete token. Authentication is not a
	// substitute: an unowned link belongs to whoever holds its token.
	ErrDeleteTokenRequired = errors.New("delete token required")
)

const expectedCodes = 1_000_000

// CodeGenerator produces short, practically-unique codes.
type CodeGenerator func() string

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*CreateLinkResult, error)
	Resolve(ctx context.Context, code string) (*model.Link, error)
	ListLinks(ctx context.Context, ownerID string) ([]model.Link, error)
	DeleteLink(ctx context.Context, code string, requester *string, hasDeleteToken bool) error
	SeedCodeFilter(ctx context.Context) error
}

// Options carries the lifecycle knobs the service needs. Everything is
// explicit configuration; there are no ambient globals.
type Options struct {
	GracePeriod     time.Duration
	GenerateRetries int
}

type linkService struct {
	repo    repository.LinkRepository
	gen     CodeGenerator
	opts    Options
	nowFunc func() time.Time

	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewLinkService returns a service implementation backed by the given
// repository and code generator.
func NewLinkService(repo repository.LinkRepository, gen CodeGenerator, opts Options) LinkService {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Minute
	}
	if opts.GenerateRetries <= 0 {
		opts.GenerateRetries = 6
	}
	return &linkService{
		repo:    repo,
		gen:     gen,
		opts:    opts,
		nowFunc: time.Now,
		filter:  bloom.NewWithEstimates(expectedCodes, 0.01),
	}
}

// CreateLinkInput captures data required to create a link. A nil OwnerID
// means the caller is anonymous and the link is created on the free tier.
type CreateLinkInput struct {
	TargetURL string
	OwnerID   *string
}

// CreateLinkResult reports the created (or deduplicated) link.
type CreateLinkResult struct {
	Link *model.Link
	// Existing is true when an owned link with the same target already
	// existed and was returned instead of creating a duplicate.
	Existing bool
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*CreateLinkResult, error) {
	target, err := validateTargetURL(input.TargetURL)
	if err != nil {
		return nil, err
	}

	owner := normalizeOwner(input.OwnerID)

	// Owned links are idempotent by content: creating the same target twice
	// for the same owner returns the existing link. Anonymous links are
	// never deduplicated since each one is independently ephemeral.
	if owner != nil {
		existing, err := s.repo.GetByOwnerAndTarget(ctx, *owner, target)
		if err == nil {
			return &CreateLinkResult{Link: existing, Existing: true}, nil
		}
		if !errors.Is(err, repository.ErrLinkNotFound) {
			return nil, fmt.Errorf("lookup existing link: %w", err)
		}
	}

	tier := model.TierFree
	if owner != nil {
		tier = model.TierPremium
	}

	now := s.nowFunc()
	link := &model.Link{
		TargetURL: target,
		OwnerID:   owner,
		Tier:      tier,
		CreatedAt: now,
		ExpiresAt: computeExpiry(tier, now, s.opts.GracePeriod),
	}

	// Collisions are vanishingly rare but possible; regenerate within a
	// bounded retry budget.
	for i := 0; i < s.opts.GenerateRetries; i++ {
		link.Code = s.gen()
		err := s.repo.Create(ctx, link)
		if err == nil {
			s.rememberCode(link.Code)
			return &CreateLinkResult{Link: link}, nil
		}
		if !errors.Is(err, repository.ErrCodeTaken) {
			return nil, fmt.Errorf("create link: %w", err)
		}
	}
	return nil, ErrGenerationExhausted
}

// Resolve returns the live link for a code. Expired links are
// indistinguishable from deleted ones: both are ErrLinkNotFound.
func (s *linkService) Resolve(ctx context.Context, code string) (*model.Link, error) {
	if code == "" || !s.mightExist(code) {
		return nil, repository.ErrLinkNotFound
	}

	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get link: %w", err)
	}

	if link.Expired(s.nowFunc()) {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, ownerID string) ([]model.Link, error) {
	links, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

// DeleteLink removes a link and its entire visit history. Deleting a code
// that is already gone is a no-op. Owned links may only be deleted by their
// owner. Anonymous links may only be deleted with the creation-time delete
// token; hasDeleteToken reports that the HTTP layer validated one for this
// code, and no authenticated identity bypasses it.
func (s *linkService) DeleteLink(ctx context.Context, code string, requester *string, hasDeleteToken bool) error {
	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			// Idempotent: already gone.
			return nil
		}
		return fmt.Errorf("load link: %w", err)
	}

	if link.Owned() {
		if requester == nil || *requester != *link.OwnerID {
			return ErrNotOwner
		}
	} else if !hasDeleteToken {
		return ErrDeleteTokenRequired
	}

	if _, err := s.repo.DeleteByCode(ctx, code); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// SeedCodeFilter loads every live code into the bloom filter so resolves of
// codes that cannot exist skip the store entirely. Deleted codes stay in
// the filter; a false positive just falls through to a store miss.
func (s *linkService) SeedCodeFilter(ctx context.Context) error {
	codes, err := s.repo.ListCodes(ctx)
	if err != nil {
		return fmt.Errorf("seed code filter: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range codes {
		s.filter.AddString(code)
	}
	return nil
}

func (s *linkService) rememberCode(code string) {
	s.mu.Lock()
	s.filter.AddString(code)
	s.mu.Unlock()
}

func (s *linkService) mightExist(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.TestString(code)
}

// computeExpiry is the whole expiration policy: premium links never expire,
// free links live for exactly one grace period past creation.
func computeExpiry(tier model.Tier, createdAt time.Time, grace time.Duration) *time.Time {
	if tier == model.TierPremium {
		return nil
	}
	expires := createdAt.Add(grace)
	return &expires
}

func normalizeOwner(owner *string) *string {
	if owner == nil || strings.TrimSpace(*owner) == "" {
		return nil
	}
	return owner
}

func validateTargetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidTarget
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidTarget
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidTarget
	}
	if parsed.Host == "" {
		return "", ErrInvalidTarget
	}
	return parsed.String(), nil
}
