// Package tokenx issues and validates the stateless, signed tokens that gate
// entry into the platform: invitation tokens and family-invitation tokens.
//
// A token is `base64url(payload) "." base64url(mac)` where payload is the
// canonical JSON encoding of Payload and mac is an HMAC-SHA256 over those
// exact payload bytes. Validity is self-contained: no store lookup is needed
// to reject a forged or expired token. A successful validation does NOT imply
// the referenced record still exists or is still pending; callers must
// confirm that separately before acting.
package tokenx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Kind enumerates what a token authorizes.
type Kind string

const (
	KindAlumni       Kind = "alumni"
	KindFamilyMember Kind = "family_member"
)

var (
	// ErrMalformedToken reports structurally invalid input: wrong part
	// count, bad base64, or a payload that is not valid JSON. Always a
	// client error, never retried.
	ErrMalformedToken = errors.New("tokenx: malformed token")

	// ErrInvalidSignature reports a MAC that matches no verify candidate.
	// Treated as a security event; callers must not reveal which check
	// failed beyond "invalid token".
	ErrInvalidSignature = errors.New("tokenx: invalid signature")

	// ErrTokenExpired reports a well-signed token past its expiry, surfaced
	// distinctly so a caller can offer "request a new invitation".
	ErrTokenExpired = errors.New("tokenx: token expired")

	// ErrInvalidPayload reports an unissuable payload (expiry not after
	// issue time, missing subject).
	ErrInvalidPayload = errors.New("tokenx: invalid payload")
)

// Payload is the semantic content of a token. Field order is the canonical
// encoding order and must not change: issuance is deliberately deterministic,
// so the same logical payload always yields the same token.
type Payload struct {
	SubjectID string `json:"sub"`
	Email     string `json:"email"`
	Kind      Kind   `json:"kind"`
	IssuedAt  int64  `json:"iat"` // epoch millis
	ExpiresAt int64  `json:"exp"` // epoch millis
}

// Secrets supplies signing and verification key material. *secretx.Manager
// satisfies this.
type Secrets interface {
	Current() []byte
	VerifyCandidates() [][]byte
}

// Service builds and verifies signed tokens using a secret manager.
type Service struct {
	Secrets Secrets

	// Now is the clock used for expiry checks; defaults to time.Now.
	Now func() time.Time
}

// Issue canonicalizes the payload, signs it with the current secret and
// encodes the result as a single URL-safe string. The email is normalized to
// lower case before signing so lookups on acceptance are case-insensitive.
func (s *Service) Issue(p Payload) (string, error) {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))

	if p.SubjectID == "" || p.ExpiresAt <= p.IssuedAt {
		return "", ErrInvalidPayload
	}

	canonical, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	mac := sign(canonical, s.Secrets.Current())

	return base64.RawURLEncoding.EncodeToString(canonical) +
		"." +
		base64.RawURLEncoding.EncodeToString(mac), nil
}

// Validate decodes a token, verifies its MAC against every candidate secret
// (current first, then previous) in constant time per candidate, and checks
// expiry. Structural checks run before any cryptographic work.
func (s *Service) Validate(token string) (Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Payload{}, ErrMalformedToken
	}

	canonical, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Payload{}, ErrMalformedToken
	}
	gotMAC, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Payload{}, ErrMalformedToken
	}

	var p Payload
	if err := json.Unmarshal(canonical, &p); err != nil {
		return Payload{}, ErrMalformedToken
	}

	verified := false
	for _, secret := range s.Secrets.VerifyCandidates() {
		if hmac.Equal(gotMAC, sign(canonical, secret)) {
			verified = true
			break
		}
	}
	if !verified {
		return Payload{}, ErrInvalidSignature
	}

	if s.now().UnixMilli() > p.ExpiresAt {
		return Payload{}, ErrTokenExpired
	}

	return p, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func sign(msg, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(msg)
	return h.Sum(nil)
}
