package webpush

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mypace/internal/domain/push"
)

var (
	pushTracer          = otel.Tracer("mypace/webpush")
	pushMeter           = otel.Meter("mypace/webpush")
	deliveryTotal, _    = pushMeter.Int64Counter("webpush.delivery.total", metric.WithDescription("Push deliveries by outcome"))
	deliveryDuration, _ = pushMeter.Float64Histogram("webpush.delivery.duration", metric.WithDescription("Push delivery duration in seconds"), metric.WithUnit("s"))
)

// Config holds the web push client settings. PublicKey/PrivateKey/Subject
// are the VAPID identity; TTL is the retention hint (seconds) sent to the
// push service; TokenTTL bounds the lifetime of each minted VAPID token;
// Timeout bounds each outbound HTTP call.
type Config struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        int
	TokenTTL   time.Duration
	Timeout    time.Duration
}

// Client implements push.Dispatcher over the Web Push protocol.
type Client struct {
	signer     *Signer
	httpClient *http.Client
	ttl        int
	tokenTTL   time.Duration
}

// NewClient validates the VAPID key material and returns a dispatcher.
// Key errors are configuration errors: they fail startup rather than
// individual deliveries.
func NewClient(cfg Config) (*Client, error) {
	signer, err := NewSigner(cfg.PublicKey, cfg.PrivateKey, cfg.Subject)
	if err != nil {
		return nil, err
	}

	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 15 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		signer:     signer,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		ttl:        cfg.TTL,
		tokenTTL:   cfg.TokenTTL,
	}, nil
}

// Deliver encrypts the payload for one subscription, posts it to the
// subscription's push service and classifies the response. An error
// wrapping push.ErrSubscriptionGone means the endpoint is permanently dead;
// every other error (malformed stored keys, network failure, 5xx, timeout)
// is transient and triggers no state change.
func (c *Client) Deliver(ctx context.Context, sub *push.Subscription, payload *push.Payload) error {
	start := time.Now()
	ctx, span := pushTracer.Start(ctx, "webpush.deliver",
		trace.WithAttributes(attribute.String("push.subscription_id", sub.ID)),
	)
	defer span.End()

	err := c.deliver(ctx, sub, payload)

	outcome := "delivered"
	switch {
	case errors.Is(err, push.ErrSubscriptionGone):
		outcome = "stale"
	case err != nil:
		outcome = "failed"
	}
	deliveryTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	deliveryDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) deliver(ctx context.Context, sub *push.Subscription, payload *push.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize payload: %w", err)
	}

	// Stored key material that fails to decode is a store-level problem,
	// not a staleness signal: report it as transient, never delete.
	authSecret, err := decodeBase64URL(sub.Auth)
	if err != nil {
		return fmt.Errorf("failed to decode auth secret: %w", err)
	}
	subscriberKey, err := decodeBase64URL(sub.P256dh)
	if err != nil {
		return fmt.Errorf("failed to decode p256dh key: %w", err)
	}

	msg, err := Encrypt(body, subscriberKey, authSecret)
	if err != nil {
		return fmt.Errorf("failed to encrypt payload: %w", err)
	}

	audience, err := Audience(sub.Endpoint)
	if err != nil {
		return err
	}
	token, err := c.signer.Token(audience, c.tokenTTL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(msg.Ciphertext))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Encoding", "aesgcm")
	req.Header.Set("Encryption", "salt="+base64.RawURLEncoding.EncodeToString(msg.Salt))
	req.Header.Set("Crypto-Key", "dh="+base64.RawURLEncoding.EncodeToString(msg.ServerPublicKey)+";p256ecdsa="+c.signer.PublicKey())
	req.Header.Set("Authorization", "WebPush "+token)
	req.Header.Set("TTL", strconv.Itoa(c.ttl))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("push service returned %d: %w", resp.StatusCode, push.ErrSubscriptionGone)
	default:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
}
