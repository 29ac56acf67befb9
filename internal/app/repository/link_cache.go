package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/LinkTrace/internal/app/model"
)

// CachedLinkRepository decorates a LinkRepository with a read-through Redis
// cache on the redirect hot path. Cache failures are ignored: Redis being
// down degrades to plain Postgres reads, never to request failures.
type CachedLinkRepository struct {
	inner  LinkRepository
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCachedLinkRepository wraps repo with a Redis cache using the given TTL.
func NewCachedLinkRepository(repo LinkRepository, client *redis.Client, ttl time.Duration) *CachedLinkRepository {
	return &CachedLinkRepository{
		inner:  repo,
		client: client,
		prefix: "link:",
		ttl:    ttl,
	}
}

func (r *CachedLinkRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.inner.Create(ctx, link); err != nil {
		return err
	}
	// Write-through after a successful insert.
	r.cacheLink(ctx, link)
	return nil
}

func (r *CachedLinkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	if link, err := r.getFromCache(ctx, code); err == nil {
		return link, nil
	}

	link, err := r.inner.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r.cacheLink(ctx, link)
	return link, nil
}

func (r *CachedLinkRepository) GetByOwnerAndTarget(ctx context.Context, ownerID, targetURL string) (*model.Link, error) {
	return r.inner.GetByOwnerAndTarget(ctx, ownerID, targetURL)
}

func (r *CachedLinkRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Link, error) {
	return r.inner.ListByOwner(ctx, ownerID)
}

func (r *CachedLinkRepository) ListCodes(ctx context.Context) ([]string, error) {
	return r.inner.ListCodes(ctx)
}

func (r *CachedLinkRepository) DeleteByCode(ctx context.Context, code string) (bool, error) {
	removed, err := r.inner.DeleteByCode(ctx, code)
	if err != nil {
		return removed, err
	}
	r.client.Del(ctx, r.prefix+code)
	return removed, nil
}

func (r *CachedLinkRepository) DeleteExpired(ctx context.Context, limit int) ([]string, error) {
	codes, err := r.inner.DeleteExpired(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		keys := make([]string, len(codes))
		for i, code := range codes {
			keys[i] = r.prefix + code
		}
		r.client.Del(ctx, keys...)
	}
	return codes, nil
}

func (r *CachedLinkRepository) getFromCache(ctx context.Context, code string) (*model.Link, error) {
	result, err := r.client.HGetAll(ctx, r.prefix+code).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrLinkNotFound
	}

	link := &model.Link{
		Code:      result["code"],
		TargetURL: result["target_url"],
		Tier:      model.Tier(result["tier"]),
	}
	if owner := result["owner_id"]; owner != "" {
		link.OwnerID = &owner
	}
	if nanos, err := strconv.ParseInt(result["created_at"], 10, 64); err == nil {
		link.CreatedAt = time.Unix(0, nanos)
	}
	if nanos, err := strconv.ParseInt(result["expires_at"], 10, 64); err == nil && nanos > 0 {
		t := time.Unix(0, nanos)
		link.ExpiresAt = &t
	}
	return link, nil
}

func (r *CachedLinkRepository) cacheLink(ctx context.Context, link *model.Link) {
	owner := ""
	if link.OwnerID != nil {
		owner = *link.OwnerID
	}
	var expiresNanos int64
	if link.ExpiresAt != nil {
		expiresNanos = link.ExpiresAt.UnixNano()
	}

	ttl := r.ttl
	if link.ExpiresAt != nil {
		// Never serve a cached entry past the link's own expiry.
		if until := time.Until(*link.ExpiresAt); until < ttl {
			ttl = until
		}
		if ttl <= 0 {
			return
		}
	}

	pipe := r.client.Pipeline()
	key := r.prefix + link.Code
	pipe.HSet(ctx, key, map[string]interface{}{
		"code":       link.Code,
		"target_url": link.TargetURL,
		"owner_id":   owner,
		"tier":       string(link.Tier),
		"created_at": link.CreatedAt.UnixNano(),
		"expires_at": expiresNanos,
	})
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

// Compile-time check.
var _ LinkRepository = (*CachedLinkRepository)(nil)
