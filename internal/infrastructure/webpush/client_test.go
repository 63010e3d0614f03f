package webpush

import (
	"context"
	"crypto/ecdh"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mypace/internal/domain/push"
)

func newTestClient(t *testing.T, timeout time.Duration) *Client {
	t.Helper()

	pub, priv := newTestVAPIDKeys(t)
	client, err := NewClient(Config{
		PublicKey:  pub,
		PrivateKey: priv,
		Subject:    "mailto:admin@mypace.example",
		TTL:        60,
		TokenTTL:   5 * time.Minute,
		Timeout:    timeout,
	})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return client
}

// newTestSubscription builds a subscription with real browser-style key
// material pointing at the given endpoint. The subscriber private key and
// auth secret are returned for decryption.
func newTestSubscription(t *testing.T, endpoint string) (*push.Subscription, *ecdh.PrivateKey, []byte) {
	t.Helper()

	subscriber, authSecret := newTestSubscriber(t)
	sub := &push.Subscription{
		ID:         "sub-1",
		Pubkey:     "npub-test",
		Endpoint:   endpoint,
		Auth:       base64.RawURLEncoding.EncodeToString(authSecret),
		P256dh:     base64.RawURLEncoding.EncodeToString(subscriber.PublicKey().Bytes()),
		Preference: push.PreferenceAll,
	}
	return sub, subscriber, authSecret
}

func testPayload() *push.Payload {
	p, _ := push.NewPayload(push.TypeReply)
	return p
}

func TestDeliver_RequestShape(t *testing.T) {
	var (
		gotHeaders http.Header
		gotBody    []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, 5*time.Second)
	sub, subscriber, authSecret := newTestSubscription(t, server.URL)

	if err := client.Deliver(context.Background(), sub, testPayload()); err != nil {
		t.Fatalf("Deliver() failed: %v", err)
	}

	if got := gotHeaders.Get("Content-Encoding"); got != "aesgcm" {
		t.Errorf("Content-Encoding = %q, want %q", got, "aesgcm")
	}
	if got := gotHeaders.Get("TTL"); got != "60" {
		t.Errorf("TTL = %q, want %q", got, "60")
	}
	if got := gotHeaders.Get("Authorization"); !strings.HasPrefix(got, "WebPush ") {
		t.Errorf("Authorization = %q, want WebPush prefix", got)
	}

	encryption := gotHeaders.Get("Encryption")
	if !strings.HasPrefix(encryption, "salt=") {
		t.Fatalf("Encryption = %q, want salt= prefix", encryption)
	}
	salt, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(encryption, "salt="))
	if err != nil {
		t.Fatalf("failed to decode salt: %v", err)
	}

	cryptoKey := gotHeaders.Get("Crypto-Key")
	if !strings.Contains(cryptoKey, ";p256ecdsa="+client.signer.PublicKey()) {
		t.Errorf("Crypto-Key = %q, missing p256ecdsa parameter", cryptoKey)
	}
	dhPart := strings.TrimPrefix(strings.SplitN(cryptoKey, ";", 2)[0], "dh=")
	serverKey, err := base64.RawURLEncoding.DecodeString(dhPart)
	if err != nil {
		t.Fatalf("failed to decode dh parameter: %v", err)
	}

	// The body must decrypt, with the header material, back to the payload JSON.
	plaintext := decrypt(t, subscriber, authSecret, &EncryptedMessage{
		Ciphertext:      gotBody,
		Salt:            salt,
		ServerPublicKey: serverKey,
	})
	var decoded push.Payload
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		t.Fatalf("decrypted body is not payload JSON: %v", err)
	}
	if decoded.Tag != "mypace-reply" || decoded.Data.URL != "/" {
		t.Errorf("decrypted payload = %+v, want reply payload with url /", decoded)
	}
}

func TestDeliver_ResponseClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantErr  bool
		wantGone bool
	}{
		{name: "200 delivered", status: http.StatusOK},
		{name: "201 delivered", status: http.StatusCreated},
		{name: "404 gone", status: http.StatusNotFound, wantErr: true, wantGone: true},
		{name: "410 gone", status: http.StatusGone, wantErr: true, wantGone: true},
		{name: "400 transient", status: http.StatusBadRequest, wantErr: true},
		{name: "429 transient", status: http.StatusTooManyRequests, wantErr: true},
		{name: "500 transient", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, 5*time.Second)
			sub, _, _ := newTestSubscription(t, server.URL)

			err := client.Deliver(context.Background(), sub, testPayload())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Deliver() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, push.ErrSubscriptionGone); got != tt.wantGone {
				t.Errorf("ErrSubscriptionGone = %v, want %v", got, tt.wantGone)
			}
		})
	}
}

func TestDeliver_MalformedStoredKeys(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, 5*time.Second)

	tests := []struct {
		name   string
		mutate func(*push.Subscription)
	}{
		{name: "bad auth base64", mutate: func(s *push.Subscription) { s.Auth = "!!!" }},
		{name: "bad p256dh base64", mutate: func(s *push.Subscription) { s.P256dh = "!!!" }},
		{name: "truncated p256dh", mutate: func(s *push.Subscription) { s.P256dh = "AAAA" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, _, _ := newTestSubscription(t, server.URL)
			tt.mutate(sub)

			err := client.Deliver(context.Background(), sub, testPayload())
			if err == nil {
				t.Fatal("Deliver() accepted malformed subscription keys")
			}
			// A store-side data problem is never a staleness signal.
			if errors.Is(err, push.ErrSubscriptionGone) {
				t.Error("malformed keys classified as gone")
			}
		})
	}

	if requests != 0 {
		t.Errorf("push service received %d requests for malformed subscriptions, want 0", requests)
	}
}

func TestDeliver_TimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, 50*time.Millisecond)
	sub, _, _ := newTestSubscription(t, server.URL)

	err := client.Deliver(context.Background(), sub, testPayload())
	if err == nil {
		t.Fatal("Deliver() succeeded despite timeout")
	}
	if errors.Is(err, push.ErrSubscriptionGone) {
		t.Error("timeout classified as gone")
	}
}
