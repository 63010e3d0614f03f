package webpush

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"
)

// newTestVAPIDKeys generates a VAPID key pair in the base64url form the
// service is configured with.
func newTestVAPIDKeys(t *testing.T) (publicKey, privateKey string) {
	t.Helper()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate VAPID key: %v", err)
	}

	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(key.Bytes())
}

func TestNewSigner_Validation(t *testing.T) {
	pub, priv := newTestVAPIDKeys(t)
	otherPub, _ := newTestVAPIDKeys(t)

	tests := []struct {
		name    string
		pub     string
		priv    string
		subject string
		wantErr bool
	}{
		{name: "valid", pub: pub, priv: priv, subject: "mailto:admin@mypace.example"},
		{name: "padded keys accepted", pub: pub + "==", priv: priv + "=", subject: "mailto:admin@mypace.example"},
		{name: "missing subject", pub: pub, priv: priv, subject: "", wantErr: true},
		{name: "mismatched key pair", pub: otherPub, priv: priv, subject: "mailto:a@b.c", wantErr: true},
		{name: "garbage private key", pub: pub, priv: "!!not-base64!!", subject: "mailto:a@b.c", wantErr: true},
		{name: "short private key", pub: pub, priv: base64.RawURLEncoding.EncodeToString([]byte("short")), subject: "mailto:a@b.c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(tt.pub, tt.priv, tt.subject)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSigner() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToken_FormatAndSignature(t *testing.T) {
	pub, priv := newTestVAPIDKeys(t)
	signer, err := NewSigner(pub, priv, "mailto:admin@mypace.example")
	if err != nil {
		t.Fatalf("NewSigner() failed: %v", err)
	}

	audience := "https://push.example.net"
	token, err := signer.Token(audience, 15*time.Minute)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}

	// base64url throughout: a strict consumer must never see +, / or padding
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token contains non-base64url characters: %q", token)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.Strict().DecodeString(parts[0])
	if err != nil {
		t.Fatalf("failed to decode header: %v", err)
	}
	var header map[string]string
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		t.Fatalf("failed to parse header: %v", err)
	}
	if header["alg"] != "ES256" || header["typ"] != "JWT" {
		t.Errorf("header = %v, want alg=ES256 typ=JWT", header)
	}

	claimsJSON, err := base64.RawURLEncoding.Strict().DecodeString(parts[1])
	if err != nil {
		t.Fatalf("failed to decode claims: %v", err)
	}
	var claims struct {
		Aud string `json:"aud"`
		Exp int64  `json:"exp"`
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		t.Fatalf("failed to parse claims: %v", err)
	}
	if claims.Aud != audience {
		t.Errorf("aud = %q, want %q", claims.Aud, audience)
	}
	if claims.Sub != "mailto:admin@mypace.example" {
		t.Errorf("sub = %q, want mailto:admin@mypace.example", claims.Sub)
	}
	wantExp := time.Now().Add(15 * time.Minute).Unix()
	if claims.Exp < wantExp-30 || claims.Exp > wantExp+30 {
		t.Errorf("exp = %d, want ~%d", claims.Exp, wantExp)
	}

	// Raw r||s signature, not ASN.1/DER
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		t.Fatalf("failed to decode signature: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64", len(sig))
	}

	rawPub, _ := base64.RawURLEncoding.DecodeString(pub)
	verifyKey := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(rawPub[1:33]),
		Y:     new(big.Int).SetBytes(rawPub[33:65]),
	}
	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if !ecdsa.Verify(verifyKey, digest[:], r, s) {
		t.Error("signature does not verify against the VAPID public key")
	}
}

func TestAudience(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
		wantErr  bool
	}{
		{
			name:     "https endpoint with path",
			endpoint: "https://fcm.googleapis.com/fcm/send/abc123",
			want:     "https://fcm.googleapis.com",
		},
		{
			name:     "endpoint with port",
			endpoint: "https://updates.push.services.mozilla.com:443/wpush/v2/xyz",
			want:     "https://updates.push.services.mozilla.com:443",
		},
		{
			name:     "missing scheme",
			endpoint: "push.example.com/send",
			wantErr:  true,
		},
		{
			name:     "empty endpoint",
			endpoint: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Audience(tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Audience() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Audience() = %q, want %q", got, tt.want)
			}
		})
	}
}
