package registry

import "context"

// Store persists session records. Implementations return ErrNotFound for
// missing records and ErrDuplicate on Create conflicts.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	GetByTokenHash(ctx context.Context, hash string) (Record, error)
	// Update replaces the record with the same ID.
	Update(ctx context.Context, rec Record) error
	// ListActiveByUser returns the user's records with Active set, including
	// ones whose expiry has passed.
	ListActiveByUser(ctx context.Context, userID string) ([]Record, error)
}
