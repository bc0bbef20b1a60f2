package iam

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/proprion/proprion/internal/constants"
)

// RequestSigner produces the value for one outbound request's auth header.
// The header name it feeds is provider-specific (X-Auth-Token vs
// Authorization), so signers only return the value.
type RequestSigner interface {
	Sign(method, path string, body []byte) (string, error)
}

// StaticTokenSigner returns the secret key itself as a bearer-style token.
// No expiry, no per-request computation.
type StaticTokenSigner struct {
	token string
}

// NewStaticTokenSigner builds a signer around an opaque token.
func NewStaticTokenSigner(token string) (*StaticTokenSigner, error) {
	if token == "" {
		return nil, ErrNoKeyMaterial
	}
	return &StaticTokenSigner{token: token}, nil
}

func (s *StaticTokenSigner) Sign(method, path string, body []byte) (string, error) {
	return s.token, nil
}

// hmacSchemeID identifies the Exoscale v2 signature scheme.
const hmacSchemeID = "EXO2-HMAC-SHA256"

// HMACSigner implements the EXO2-HMAC-SHA256 scheme: a time-boxed HMAC over
// a canonical message of five newline-joined fields:
//
//	"{method} {path}"
//	request body (empty string if none)
//	query parameters (always empty here)
//	extra signed headers (always empty here)
//	expiry as decimal unix time
//
// The expiry is now + constants.SignatureTTL, so two signatures over the
// same request at different times differ. That is the point: a captured
// header replays for at most the TTL window.
type HMACSigner struct {
	apiKey string
	secret []byte

	// now is the clock; replaceable in tests for deterministic signatures.
	now func() time.Time
}

// NewHMACSigner builds a signer from an API key pair.
func NewHMACSigner(apiKey, apiSecret string) (*HMACSigner, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrNoKeyMaterial
	}
	return &HMACSigner{
		apiKey: apiKey,
		secret: []byte(apiSecret),
		now:    time.Now,
	}, nil
}

// WithClock replaces the signer's clock. Test hook; the returned signer
// shares key material with the receiver.
func (s *HMACSigner) WithClock(now func() time.Time) *HMACSigner {
	clone := *s
	clone.now = now
	return &clone
}

// Sign computes the authorization header value for one request.
func (s *HMACSigner) Sign(method, path string, body []byte) (string, error) {
	expires := s.now().Unix() + int64(constants.SignatureTTL/time.Second)

	message := fmt.Sprintf("%s %s\n%s\n\n\n%d", method, path, body, expires)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("%s credential=%s,expires=%d,signature=%s",
		hmacSchemeID, s.apiKey, expires, signature), nil
}
