package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sifan077/LinkTrace/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrCodeTaken signals that a generated code collided with an existing one.
	ErrCodeTaken = errors.New("code already taken")
)

// LinkRepository defines the data access contract for short links.
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	GetByCode(ctx context.Context, code string) (*model.Link, error)
	GetByOwnerAndTarget(ctx context.Context, ownerID, targetURL string) (*model.Link, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Link, error)
	ListCodes(ctx context.Context) ([]string, error)
	DeleteByCode(ctx context.Context, code string) (bool, error)
	DeleteExpired(ctx context.Context, limit int) ([]string, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) GetByOwnerAndTarget(ctx context.Context, ownerID, targetURL string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND target_url = ?", ownerID, targetURL).
		First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Link, error) {
	var result []model.Link
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// ListCodes returns every live code. Used once at startup to seed the
// known-code filter.
func (r *linkRepository) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// DeleteByCode removes a link and its visit history in one transaction.
// Deleting a code that is already gone is not an error; the bool reports
// whether a row actually went away.
func (r *linkRepository) DeleteByCode(ctx context.Context, code string) (bool, error) {
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM visits WHERE link_code = ?", code).Error; err != nil {
			return err
		}
		result := tx.Where("code = ?", code).Delete(&model.Link{})
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected > 0
		return nil
	})
	return removed, err
}

// DeleteExpired purges up to limit expired links together with their visit
// histories and returns the purged codes so caches can be invalidated.
func (r *linkRepository) DeleteExpired(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}

	var codes []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			"SELECT code FROM links WHERE expires_at IS NOT NULL AND expires_at <= NOW() LIMIT ? FOR UPDATE SKIP LOCKED",
			limit,
		).Scan(&codes).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		if err := tx.Exec("DELETE FROM visits WHERE link_code IN ?", codes).Error; err != nil {
			return err
		}
		return tx.Where("code IN ?", codes).Delete(&model.Link{}).Error
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
