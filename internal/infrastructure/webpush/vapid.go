package webpush

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer mints VAPID (RFC 8292) bearer tokens proving control of the
// application server key to a push service. Tokens are scoped to one push
// service origin and minted fresh per delivery, never cached.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  string // base64url uncompressed point, as sent in Crypto-Key
	subject    string
}

// NewSigner parses the configured VAPID key pair. publicKey and privateKey
// are base64url-encoded (65-byte uncompressed point, 32-byte scalar).
// subject is the contact URI (mailto: or https:) included in every token.
// Malformed or mismatched key material fails here, at startup, before any
// subscription is ever loaded.
func NewSigner(publicKey, privateKey, subject string) (*Signer, error) {
	if subject == "" {
		return nil, fmt.Errorf("VAPID subject is required")
	}

	rawPriv, err := decodeBase64URL(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid VAPID private key: %w", err)
	}
	if len(rawPriv) != 32 {
		return nil, fmt.Errorf("VAPID private key must be 32 bytes, got %d", len(rawPriv))
	}

	// Go through crypto/ecdh first so the scalar is validated against the
	// curve order before we build the ecdsa signing key.
	ecdhKey, err := ecdh.P256().NewPrivateKey(rawPriv)
	if err != nil {
		return nil, fmt.Errorf("invalid VAPID private key: %w", err)
	}
	derivedPub := ecdhKey.PublicKey().Bytes()

	rawPub, err := decodeBase64URL(publicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid VAPID public key: %w", err)
	}
	if !bytes.Equal(rawPub, derivedPub) {
		return nil, fmt.Errorf("VAPID public key does not match private key")
	}

	signingKey := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(derivedPub[1:33]),
			Y:     new(big.Int).SetBytes(derivedPub[33:65]),
		},
		D: new(big.Int).SetBytes(rawPriv),
	}

	return &Signer{
		privateKey: signingKey,
		publicKey:  base64.RawURLEncoding.EncodeToString(derivedPub),
		subject:    subject,
	}, nil
}

// Token mints an ES256 JWT with aud/exp/sub claims for one push service
// origin. The signature is the raw 64-byte r||s form push services expect,
// not ASN.1/DER.
func (s *Signer) Token(audience string, expiry time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"aud": audience,
		"exp": time.Now().Add(expiry).Unix(),
		"sub": s.subject,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign VAPID token: %w", err)
	}
	return token, nil
}

// PublicKey returns the base64url-encoded application server key for the
// p256ecdsa parameter of the Crypto-Key header.
func (s *Signer) PublicKey() string {
	return s.publicKey
}

// Audience derives the VAPID audience (scheme + host) from a subscription
// endpoint URL.
func Audience(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid push endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("push endpoint %q has no origin", endpoint)
	}
	return u.Scheme + "://" + u.Host, nil
}

// decodeBase64URL decodes base64url data, tolerating the padding some
// browsers include in subscription exports.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
