package ack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/stancewatch/internal/model"
)

const tokenPrefix = "ack1"

// Claims is the signed payload of an ack token.
type Claims struct {
	ID           string `json:"jti"`
	Fingerprint  string `json:"fp"`
	AuditID      string `json:"aid"`
	Reason       string `json:"rsn"`
	RequiredText string `json:"txt"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

// Expiry returns the expiry as a time.
func (c Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0).UTC()
}

// Fingerprint binds a token to the user and the exact message it was
// issued for. The request id is excluded so the same request can be
// resubmitted with the token attached.
func Fingerprint(req model.RequestContext) string {
	msg := strings.Join(strings.Fields(req.Message), " ")
	h := sha256.New()
	h.Write([]byte(req.UserID))
	h.Write([]byte{0})
	h.Write([]byte(msg))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

var (
	errMalformed = errors.New("malformed token")
	errSignature = errors.New("signature mismatch")
)

// sign encodes claims as ack1.<payload>.<mac>.
func sign(secret []byte, c Claims) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("ack: marshal claims: %w", err)
	}
	body := tokenPrefix + "." + base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + base64.RawURLEncoding.EncodeToString(mac(secret, body)), nil
}

// parse verifies the signature before decoding the payload, so claims from
// a forged token are never inspected.
func parse(secret []byte, token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != tokenPrefix {
		return Claims{}, errMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, errMalformed
	}
	if !hmac.Equal(sig, mac(secret, parts[0]+"."+parts[1])) {
		return Claims{}, errSignature
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, errMalformed
	}
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, errMalformed
	}
	if c.ID == "" || c.ExpiresAt == 0 {
		return Claims{}, errMalformed
	}
	return c, nil
}

func mac(secret []byte, body string) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(body))
	return m.Sum(nil)
}
