package stores

import (
	"context"
	"errors"

	"event-gamification-system/models"
)

// Sentinel errors shared by all backends.
var (
	ErrNotFound   = errors.New("record not found")
	ErrDuplicate  = errors.New("record already exists")
	ErrQuotaEmpty = errors.New("quota counter already at zero")
)

// AccomplishmentStore is an append-only record store. Records are never
// updated or deleted. Counting queries are bounded scans: each code's
// total usage is bounded by event attendance, not unbounded growth.
type AccomplishmentStore interface {
	// Create inserts the record, keyed by (UserID, DedupKey, Seq).
	// A record with the same key already existing fails ErrDuplicate;
	// this is the store-level guarantee behind duplicate prevention.
	Create(ctx context.Context, acc *models.Accomplishment) error

	// CountForUser counts the user's records under a dedup key.
	CountForUser(ctx context.Context, userID, dedupKey string) (int, error)

	// CountGlobal counts records under a dedup key across all users.
	CountGlobal(ctx context.Context, dedupKey string) (int, error)

	// CountAllForUser counts every record the user owns, any type.
	CountAllForUser(ctx context.Context, userID string) (int, error)

	ListForUser(ctx context.Context, userID string) ([]models.Accomplishment, error)
	ListByType(ctx context.Context, typ models.AchievementType) ([]models.Accomplishment, error)
}

// UserStore holds participant records and their quota ledgers.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.Participant, error)
	GetByShareHash(ctx context.Context, hash string) (*models.Participant, error)

	// Ensure fetches the participant, creating a fresh record with full
	// allotments on first contact. Idempotent.
	Ensure(ctx context.Context, id, email string) (*models.Participant, error)

	// DecrementQuota atomically decrements a counter if it is positive,
	// returning the new value. A counter already at zero fails
	// ErrQuotaEmpty and writes nothing; counters never go negative.
	DecrementQuota(ctx context.Context, userID, counter string) (int, error)

	// ResetQuota sets a counter to the given value for every
	// participant. Used only by the scheduled daily reset; returns the
	// number of records touched.
	ResetQuota(ctx context.Context, counter string, value int) (int, error)
}
