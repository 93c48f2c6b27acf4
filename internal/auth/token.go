// Package auth implements the short-lived signed tokens used for realtime
// collaboration handshakes. Tokens are scoped to a single user and expire
// quickly; they carry no role or session information.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Claims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid collab token")
	ErrExpiredToken = errors.New("expired collab token")
)

func IssueToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	payloadBytes, err := json.Marshal(Claims{
		Sub: userID,
		Exp: time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signature := sign(secret, payload)
	return payload + "." + signature, nil
}

// VerifyToken checks the signature and expiry and returns the user id the
// token was issued for.
func VerifyToken(secret []byte, token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return "", ErrInvalidToken
	}
	payload := parts[0]
	signature := parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return "", ErrInvalidToken
	}
	if claims.Sub == "" || claims.Exp == 0 {
		return "", ErrInvalidToken
	}
	if time.Now().Unix() >= claims.Exp {
		return "", ErrExpiredToken
	}
	return claims.Sub, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
