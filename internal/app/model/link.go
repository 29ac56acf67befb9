package model

import "time"

// Tier controls the expiration behaviour of a link. It is fixed at creation.
type Tier string

const (
	// TierFree links are ephemeral and reaped after the configured grace period.
	TierFree Tier = "free"
	// TierPremium links belong to an authenticated owner and never expire.
	TierPremium Tier = "premium"
)

// Link describes the core short-link entity stored in Postgres.
type Link struct {
	Code      string     `db:"code" gorm:"primaryKey;size:32"`
	TargetURL string     `db:"target_url" gorm:"type:text;not null"`
	OwnerID   *string    `db:"owner_id" gorm:"size:64;index"`
	Tier      Tier       `db:"tier" gorm:"size:16;not null;default:free"`
	ExpiresAt *time.Time `db:"expires_at" gorm:"index"`
	CreatedAt time.Time  `db:"created_at" gorm:"autoCreateTime"`
}

// Owned reports whether the link is attached to an authenticated identity.
func (l *Link) Owned() bool {
	return l.OwnerID != nil && *l.OwnerID != ""
}

// Expired reports whether the link's expiry has passed at the given instant.
// Links without an expiry never expire.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}
