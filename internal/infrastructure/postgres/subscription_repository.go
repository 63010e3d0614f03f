package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"mypace/internal/domain/push"
)

type SubscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Upsert registers a push subscription. The endpoint is the natural key:
// re-registering an endpoint replaces pubkey, keys and preference in one
// statement rather than field-by-field.
func (r *SubscriptionRepository) Upsert(ctx context.Context, params push.CreateSubscriptionParams) (*push.Subscription, error) {
	query := `
		INSERT INTO push_subscriptions (id, pubkey, endpoint, auth, p256dh, preference)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (endpoint) DO UPDATE
			SET pubkey = EXCLUDED.pubkey,
			    auth = EXCLUDED.auth,
			    p256dh = EXCLUDED.p256dh,
			    preference = EXCLUDED.preference
		RETURNING id, pubkey, endpoint, auth, p256dh, preference, created_at
	`

	var sub push.Subscription
	err := r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.Pubkey, params.Endpoint, params.Auth, params.P256dh, params.Preference,
	).Scan(&sub.ID, &sub.Pubkey, &sub.Endpoint, &sub.Auth, &sub.P256dh, &sub.Preference, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert push subscription: %w", err)
	}

	return &sub, nil
}

func (r *SubscriptionRepository) ListByPubkey(ctx context.Context, pubkey string) ([]*push.Subscription, error) {
	query := `
		SELECT id, pubkey, endpoint, auth, p256dh, preference, created_at
		FROM push_subscriptions
		WHERE pubkey = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, pubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*push.Subscription
	for rows.Next() {
		var sub push.Subscription
		if err := rows.Scan(&sub.ID, &sub.Pubkey, &sub.Endpoint, &sub.Auth, &sub.P256dh, &sub.Preference, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan push subscription: %w", err)
		}
		subs = append(subs, &sub)
	}

	return subs, rows.Err()
}

func (r *SubscriptionRepository) UpdatePreference(ctx context.Context, pubkey, endpoint, preference string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET preference = $1 WHERE pubkey = $2 AND endpoint = $3`,
		preference, pubkey, endpoint,
	)
	if err != nil {
		return fmt.Errorf("failed to update push preference: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update push preference: %w", err)
	}
	if affected == 0 {
		return push.ErrSubscriptionNotFound
	}
	return nil
}

// DeleteByEndpoint removes one registration. Unknown endpoints are a no-op
// so unsubscribing twice is safe.
func (r *SubscriptionRepository) DeleteByEndpoint(ctx context.Context, pubkey, endpoint string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE pubkey = $1 AND endpoint = $2`,
		pubkey, endpoint,
	)
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

// DeleteByIDs removes stale subscriptions in one batch. Already-deleted IDs
// are skipped silently.
func (r *SubscriptionRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to delete stale push subscriptions: %w", err)
	}
	return nil
}
