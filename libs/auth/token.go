package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies the front desk user behind a request.
type Claims struct {
	Sub     string `json:"sub"`
	Role    string `json:"role"`
	StaffID string `json:"staff_id,omitempty"`
	Exp     int64  `json:"exp"`
	Iat     int64  `json:"iat"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

type token struct {
	header   header
	claims   Claims
	unsigned string
	sig      []byte
}

func parse(raw string) (*token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	var t token
	if err := decodeSegment(parts[0], &t.header); err != nil {
		return nil, err
	}
	if err := decodeSegment(parts[1], &t.claims); err != nil {
		return nil, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidToken
	}
	t.unsigned = parts[0] + "." + parts[1]
	t.sig = sig
	return &t, nil
}

func decodeSegment(seg string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return ErrInvalidToken
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ErrInvalidToken
	}
	return nil
}

func (t *token) expired(now time.Time) bool {
	return t.claims.Exp > 0 && now.Unix() > t.claims.Exp
}

func (t *token) verifyHS256(secret string) error {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(t.unsigned))
	if !hmac.Equal(t.sig, mac.Sum(nil)) {
		return ErrInvalidToken
	}
	return nil
}

func (t *token) verifyRS256(key *rsa.PublicKey) error {
	hash := sha256.Sum256([]byte(t.unsigned))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hash[:], t.sig); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// SignHS256 issues a shared-secret token; used by tooling and tests.
func SignHS256(claims Claims, secret string) (string, error) {
	headerJSON, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(unsigned))
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
