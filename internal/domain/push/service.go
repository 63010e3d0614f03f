package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Service contains the business logic for push subscription lifecycle and
// notification fan-out.
type Service struct {
	repo       Repository
	dispatcher Dispatcher
}

// NewService creates a new push service
func NewService(repo Repository, dispatcher Dispatcher) *Service {
	return &Service{repo: repo, dispatcher: dispatcher}
}

// Subscribe registers a browser push subscription for a pubkey. An existing
// registration for the same endpoint is replaced.
func (s *Service) Subscribe(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Preference == "" {
		params.Preference = PreferenceAll
	}

	return s.repo.Upsert(ctx, params)
}

// Unsubscribe removes a registration. Removing an unknown endpoint is a no-op.
func (s *Service) Unsubscribe(ctx context.Context, pubkey, endpoint string) error {
	if pubkey == "" || endpoint == "" {
		return fmt.Errorf("%w: pubkey and endpoint are required", ErrInvalidSubscription)
	}

	return s.repo.DeleteByEndpoint(ctx, pubkey, endpoint)
}

// UpdatePreference changes the delivery preference of one registration
func (s *Service) UpdatePreference(ctx context.Context, pubkey, endpoint, preference string) error {
	if pubkey == "" || endpoint == "" {
		return fmt.Errorf("%w: pubkey and endpoint are required", ErrInvalidSubscription)
	}
	if !IsValidPreference(preference) {
		return ErrInvalidPreference
	}

	return s.repo.UpdatePreference(ctx, pubkey, endpoint, preference)
}

// SendToUser delivers a notification to every subscription the recipient has
// registered, concurrently and independently. Subscriptions whose preference
// excludes the type are skipped. Endpoints the push service reports gone
// (404/410) are deleted in one batch once all deliveries have settled; any
// other failure is logged and leaves the subscription untouched.
//
// The call blocks until deliveries settle. Callers on a hot path invoke it
// in a goroutine of their own; best-effort semantics mean the returned error
// is for logging, never for aborting the caller's work.
func (s *Service) SendToUser(ctx context.Context, pubkey, notificationType string) error {
	if !IsValidType(notificationType) {
		return ErrInvalidType
	}
	if s.dispatcher == nil {
		return errors.New("push dispatcher is not configured")
	}

	payload, err := NewPayload(notificationType)
	if err != nil {
		return err
	}

	subs, err := s.repo.ListByPubkey(ctx, pubkey)
	if err != nil {
		return fmt.Errorf("failed to list push subscriptions: %w", err)
	}

	var targets []*Subscription
	for _, sub := range subs {
		if sub.Wants(notificationType) {
			targets = append(targets, sub)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	// Fan out one goroutine per endpoint. Failures never cross subscription
	// boundaries: each outcome is classified here and nowhere else.
	stale := make(chan string, len(targets))
	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()

			err := s.dispatcher.Deliver(ctx, sub, payload)
			switch {
			case err == nil:
			case errors.Is(err, ErrSubscriptionGone):
				log.Printf("Push endpoint gone for subscription %s, scheduling removal", sub.ID)
				stale <- sub.ID
			default:
				log.Printf("Push delivery failed for subscription %s: %v", sub.ID, err)
			}
		}(sub)
	}
	wg.Wait()
	close(stale)

	var staleIDs []string
	for id := range stale {
		staleIDs = append(staleIDs, id)
	}
	if len(staleIDs) == 0 {
		return nil
	}

	// Deletion is idempotent, so retrying is safe; a dropped delete would
	// resurrect dead endpoints on every future send.
	err = retry.Do(
		func() error { return s.repo.DeleteByIDs(ctx, staleIDs) },
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("failed to delete %d stale subscriptions: %w", len(staleIDs), err)
	}

	log.Printf("Removed %d stale push subscriptions for pubkey %s", len(staleIDs), pubkey)
	return nil
}
