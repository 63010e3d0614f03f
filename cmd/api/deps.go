package main

import (
	"log"

	"mypace/internal/domain/push"
	"mypace/internal/infrastructure/postgres"
	"mypace/internal/infrastructure/webpush"
	httphandlers "mypace/internal/interfaces/http"
	"mypace/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	PushService *push.Service
	PushHandler *httphandlers.PushHandler
}

// NewDependencies initializes all application dependencies. Invalid VAPID
// key material fails here, before anything touches the subscription store.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	// Web push dispatcher first: a configuration error must short-circuit
	// the whole service, not individual deliveries.
	dispatcher, err := webpush.NewClient(webpush.Config{
		PublicKey:  cfg.VAPID.PublicKey,
		PrivateKey: cfg.VAPID.PrivateKey,
		Subject:    cfg.VAPID.Subject,
		TTL:        cfg.Push.TTL,
		TokenTTL:   cfg.Push.TokenTTL,
		Timeout:    cfg.Push.Timeout,
	})
	if err != nil {
		return nil, err
	}

	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	pushService := push.NewService(subscriptionRepo, dispatcher)

	return &Dependencies{
		DB:          db,
		PushService: pushService,
		PushHandler: httphandlers.NewPushHandler(pushService),
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
