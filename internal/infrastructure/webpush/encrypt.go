// Package webpush implements the Web Push delivery protocol: the legacy
// aesgcm content encoding (RFC 8291 draft variant) and VAPID (RFC 8292)
// request signing. The aesgcm encoding is kept deliberately — switching to
// aes128gcm would break every subscription registered before the switch.
package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF info strings fixed by the aesgcm content encoding
const (
	authInfo   = "Content-Encoding: auth\x00"
	aesgcmInfo = "Content-Encoding: aesgcm\x00"
	nonceInfo  = "Content-Encoding: nonce\x00"
	curveInfo  = "P-256\x00"
)

const (
	authSecretLen    = 16
	subscriberKeyLen = 65 // uncompressed P-256 point
	saltLen          = 16
	cekLen           = 16
	nonceLen         = 12
)

// EncryptedMessage holds everything the dispatcher needs to build the HTTP
// request: ciphertext for the body, salt for the Encryption header and the
// ephemeral public key for the Crypto-Key header. Nothing here is persisted.
type EncryptedMessage struct {
	Ciphertext      []byte
	Salt            []byte
	ServerPublicKey []byte
}

// Encrypt seals a plaintext for one subscriber using the aesgcm content
// encoding. It is a pure function: a fresh ephemeral ECDH key pair and a
// fresh random salt are generated on every call, so encrypting the same
// plaintext twice never produces the same output.
//
// subscriberKey is the decoded p256dh value (65-byte uncompressed point),
// authSecret the decoded 16-byte auth value.
func Encrypt(plaintext, subscriberKey, authSecret []byte) (*EncryptedMessage, error) {
	if len(subscriberKey) != subscriberKeyLen {
		return nil, fmt.Errorf("subscriber key must be %d bytes, got %d", subscriberKeyLen, len(subscriberKey))
	}
	if len(authSecret) != authSecretLen {
		return nil, fmt.Errorf("auth secret must be %d bytes, got %d", authSecretLen, len(authSecret))
	}

	curve := ecdh.P256()
	subscriberPub, err := curve.NewPublicKey(subscriberKey)
	if err != nil {
		return nil, fmt.Errorf("invalid subscriber public key: %w", err)
	}

	ephemeral, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	sharedSecret, err := ephemeral.ECDH(subscriberPub)
	if err != nil {
		return nil, fmt.Errorf("ECDH agreement failed: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	serverPub := ephemeral.PublicKey().Bytes()

	// PRK: shared secret stretched with the subscriber's auth secret.
	prk := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, authSecret, []byte(authInfo)), prk); err != nil {
		return nil, fmt.Errorf("failed to derive PRK: %w", err)
	}

	// CEK and nonce are bound to both public keys via the shared context.
	keyContext := derivationContext(subscriberKey, serverPub)

	cek := make([]byte, cekLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, prk, salt, append([]byte(aesgcmInfo), keyContext...)), cek); err != nil {
		return nil, fmt.Errorf("failed to derive CEK: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, prk, salt, append([]byte(nonceInfo), keyContext...)), nonce); err != nil {
		return nil, fmt.Errorf("failed to derive nonce: %w", err)
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	// 2-byte big-endian padding length, always zero for wire compatibility
	// with the deployed subscriber base.
	padded := make([]byte, 2+len(plaintext))
	copy(padded[2:], plaintext)

	return &EncryptedMessage{
		Ciphertext:      gcm.Seal(nil, nonce, padded, nil),
		Salt:            salt,
		ServerPublicKey: serverPub,
	}, nil
}

// derivationContext builds the HKDF info suffix shared by the CEK and nonce
// derivations: "P-256\x00" followed by both public keys, each preceded by
// its 2-byte big-endian length.
func derivationContext(subscriberKey, serverKey []byte) []byte {
	buf := make([]byte, 0, len(curveInfo)+4+len(subscriberKey)+len(serverKey))
	buf = append(buf, curveInfo...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(subscriberKey)))
	buf = append(buf, subscriberKey...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(serverKey)))
	buf = append(buf, serverKey...)
	return buf
}
