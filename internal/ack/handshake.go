// Package ack implements the acknowledgment handshake: signed, time-bounded,
// single-use tokens that let a user explicitly accept a flagged risk.
package ack

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/stancewatch/internal/model"
	"github.com/ppiankov/stancewatch/internal/nonce"
)

const (
	// DefaultTTL is the default acknowledgment window.
	DefaultTTL = 15 * time.Minute
	// MaxTTL is the longest window a token may be issued for.
	MaxTTL = 1 * time.Hour
	// DefaultPhrase is the canonical text the user must echo back.
	DefaultPhrase = "I understand the risks and want to proceed"
	// MinSecretLen is the minimum signing secret length in bytes.
	MinSecretLen = 32
)

// Reason is the internal cause of a failed validation. It is logged, never
// shown to the end user.
type Reason string

const (
	ReasonMalformed         Reason = "malformed"
	ReasonSignatureMismatch Reason = "signature_mismatch"
	ReasonExpired           Reason = "expired"
	ReasonRevoked           Reason = "revoked"
	ReasonContextMismatch   Reason = "context_mismatch"
	ReasonTextMismatch      Reason = "text_mismatch"
	ReasonStoreUnavailable  Reason = "store_unavailable"
)

// ErrInvalid is the only failure callers may surface to the end user.
var ErrInvalid = errors.New("acknowledgment invalid")

// ValidationError carries the specific failure reason.
// errors.Is(err, ErrInvalid) holds for every ValidationError.
type ValidationError struct {
	Reason  Reason
	TokenID string
}

func (e *ValidationError) Error() string {
	if e.TokenID != "" {
		return fmt.Sprintf("ack: %s (token=%s)", e.Reason, e.TokenID)
	}
	return "ack: " + string(e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// ReasonOf extracts the failure reason from err, or "" if err is not a
// ValidationError.
func ReasonOf(err error) Reason {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

// Config configures a Handshake.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Phrase string
}

// Issued is returned by Issue.
type Issued struct {
	Token        string
	TokenID      string
	RequiredText string
	ExpiresAt    time.Time
}

// Handshake issues and validates ack tokens. Tokens are verifiable from the
// secret alone; the nonce store only records consumption.
type Handshake struct {
	secret []byte
	ttl    time.Duration
	phrase string
	store  nonce.Store
	now    func() time.Time
}

// New creates a Handshake. The secret must be at least MinSecretLen bytes.
func New(cfg Config, store nonce.Store) (*Handshake, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, fmt.Errorf("ack: signing secret must be at least %d bytes", MinSecretLen)
	}
	if store == nil {
		return nil, fmt.Errorf("ack: nonce store is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		return nil, fmt.Errorf("ack: ttl %s exceeds maximum %s", ttl, MaxTTL)
	}
	phrase := strings.TrimSpace(cfg.Phrase)
	if phrase == "" {
		phrase = DefaultPhrase
	}
	return &Handshake{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    ttl,
		phrase: phrase,
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Phrase returns the required acknowledgment text.
func (h *Handshake) Phrase() string {
	return h.phrase
}

// Issue creates a token bound to req and auditID.
func (h *Handshake) Issue(req model.RequestContext, reason, auditID string) (Issued, error) {
	now := h.now()
	exp := now.Add(h.ttl)
	c := Claims{
		ID:           "ack-" + uuid.NewString(),
		Fingerprint:  Fingerprint(req),
		AuditID:      auditID,
		Reason:       reason,
		RequiredText: h.phrase,
		IssuedAt:     now.Unix(),
		ExpiresAt:    exp.Unix(),
	}
	tok, err := sign(h.secret, c)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		Token:        tok,
		TokenID:      c.ID,
		RequiredText: c.RequiredText,
		ExpiresAt:    c.Expiry(),
	}, nil
}

// Validate checks, in order: signature, expiry, prior consumption, context
// fingerprint, ack text. On success the token is consumed with a single
// atomic store operation before Validate returns; if another caller consumed
// it first, validation fails as revoked. Any store error fails closed.
func (h *Handshake) Validate(ctx context.Context, token string, req model.RequestContext, submitted string) (Claims, error) {
	c, err := parse(h.secret, token)
	if err != nil {
		if errors.Is(err, errSignature) {
			return Claims{}, &ValidationError{Reason: ReasonSignatureMismatch}
		}
		return Claims{}, &ValidationError{Reason: ReasonMalformed}
	}

	now := h.now()
	if !now.Before(c.Expiry()) {
		return c, &ValidationError{Reason: ReasonExpired, TokenID: c.ID}
	}

	spent, err := h.store.Exists(ctx, spentKey(c.ID))
	if err != nil {
		return c, &ValidationError{Reason: ReasonStoreUnavailable, TokenID: c.ID}
	}
	if spent {
		return c, &ValidationError{Reason: ReasonRevoked, TokenID: c.ID}
	}

	if subtle.ConstantTimeCompare([]byte(c.Fingerprint), []byte(Fingerprint(req))) != 1 {
		return c, &ValidationError{Reason: ReasonContextMismatch, TokenID: c.ID}
	}

	if strings.TrimSpace(submitted) != c.RequiredText {
		return c, &ValidationError{Reason: ReasonTextMismatch, TokenID: c.ID}
	}

	ok, err := h.store.Consume(ctx, spentKey(c.ID), c.Expiry().Sub(now)+time.Minute)
	if err != nil {
		return c, &ValidationError{Reason: ReasonStoreUnavailable, TokenID: c.ID}
	}
	if !ok {
		return c, &ValidationError{Reason: ReasonRevoked, TokenID: c.ID}
	}
	return c, nil
}

// Revoke marks a token as spent so later validation fails as revoked.
func (h *Handshake) Revoke(ctx context.Context, tokenID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return fmt.Errorf("ack: token id is required")
	}
	if err := h.store.SetTTL(ctx, spentKey(tokenID), "revoked", MaxTTL+time.Minute); err != nil {
		return fmt.Errorf("ack: revoke %s: %w", tokenID, err)
	}
	return nil
}

func spentKey(id string) string {
	return "ack:spent:" + id
}
