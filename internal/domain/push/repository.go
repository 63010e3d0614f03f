package push

import "context"

// Repository defines the interface for subscription data access.
// Defined in the domain layer, implemented in the infrastructure layer.
type Repository interface {
	// Upsert registers a subscription. The endpoint is the natural key:
	// a conflicting endpoint replaces pubkey, keys and preference atomically.
	Upsert(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)

	// ListByPubkey returns every subscription registered for a recipient.
	ListByPubkey(ctx context.Context, pubkey string) ([]*Subscription, error)

	// UpdatePreference changes the delivery preference of one registration.
	UpdatePreference(ctx context.Context, pubkey, endpoint, preference string) error

	// DeleteByEndpoint removes one registration (explicit unsubscribe).
	DeleteByEndpoint(ctx context.Context, pubkey, endpoint string) error

	// DeleteByIDs removes the given subscriptions in one batch.
	// Deleting an already-deleted ID is a no-op.
	DeleteByIDs(ctx context.Context, ids []string) error
}
