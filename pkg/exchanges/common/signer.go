package common

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HMACSigner signs payloads with HMAC-SHA256 over a wallet API secret.
type HMACSigner struct {
	key    string
	secret []byte
}

// NewHMACSigner wraps a key/secret pair. The secret never leaves the signer.
func NewHMACSigner(key, secret string) *HMACSigner {
	return &HMACSigner{key: key, secret: []byte(secret)}
}

func (s *HMACSigner) Key() string { return s.key }

func (s *HMACSigner) Sign(payload string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
