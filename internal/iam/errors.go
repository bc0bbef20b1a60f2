package iam

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Protocol errors: the upstream answered 2xx but the response violates its
// own contract. Always fatal; retrying will not produce the missing data.
var (
	// ErrMissingReference - an async creation response carried no reference
	// to the created resource, so the principal id cannot be resolved.
	ErrMissingReference = errors.New("operation response has no reference")

	// ErrMissingSecret - an API key creation response carried no secret.
	// The secret is only ever visible in this response, so an empty field
	// means the credential is unusable.
	ErrMissingSecret = errors.New("api key response has no secret")
)

// ErrNoKeyMaterial - a signer was constructed with empty key material.
var ErrNoKeyMaterial = errors.New("signing: empty key material")

// APIError is a non-2xx response from a provider API. Message is extracted
// from the JSON "message" field when present, otherwise the raw body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s (status %d)", e.Message, e.Status)
}

// TransportError is a network-level failure: the request never produced an
// HTTP response. Distinct from APIError so callers can tell "the provider
// said no" from "the provider was unreachable".
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewAPIError builds an APIError from a response body, extracting the
// best-effort message.
func NewAPIError(status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		message = payload.Message
	}
	return &APIError{Status: status, Message: message}
}
