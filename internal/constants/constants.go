package constants

import (
	"time"
)

// HTTP client configuration
const (
	// HTTPDialTimeout - TCP connect timeout for all outbound requests
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - TCP keep-alive interval
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPTLSHandshakeTimeout - TLS handshake timeout, extended for slow networks
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle connections stay in the pool
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPRequestTimeout - overall per-request timeout for IAM API calls.
	// Provider control planes answer in well under a minute; anything longer
	// is a stuck connection.
	HTTPRequestTimeout = 60 * time.Second
)

// Retry configuration for IAM API calls.
// Creation calls are not idempotent on every backend, so the retry budget is
// deliberately small: transient connection failures get a second chance,
// nothing more.
const (
	RetryMax     = 2
	RetryWaitMin = 1 * time.Second
	RetryWaitMax = 10 * time.Second
)

// Provisioning timing
const (
	// RolePropagationDelay - fixed wait between role creation and API key
	// creation on the signed-request provider. The create-role operation
	// reports success before IAM propagation completes, and the API exposes
	// no readiness probe to poll, so a fixed delay is the only available
	// synchronization.
	RolePropagationDelay = 3 * time.Second

	// SignatureTTL - validity window of a signed request. Bounds replay of a
	// captured Authorization header; unrelated to the HTTP request timeout.
	SignatureTTL = 600 * time.Second
)

// Provider endpoints
const (
	// ScalewayIAMBaseURL - Scaleway IAM control plane (region-independent)
	ScalewayIAMBaseURL = "https://api.scaleway.com/iam/v1alpha1"

	// ExoscaleAPIBaseTemplate - Exoscale v2 API, parameterized by zone.
	// The /v2 prefix is part of the signed path and is appended per request.
	ExoscaleAPIBaseTemplate = "https://api-%s.exoscale.com"

	// ScalewayS3EndpointTemplate - Scaleway Object Storage, parameterized by region
	ScalewayS3EndpointTemplate = "https://s3.%s.scw.cloud"

	// ExoscaleSOSEndpointTemplate - Exoscale SOS, parameterized by zone
	ExoscaleSOSEndpointTemplate = "https://sos-%s.exo.io"
)

// Resource naming
const (
	// ManagedRolePrefix marks Exoscale roles created by this tool so that
	// list-apps can tell them apart from unrelated roles.
	ManagedRolePrefix = "proprion-"

	// AppPrefixRoot is the key prefix under which every application's
	// objects live: apps/<name> (Scaleway) or apps/<name>/ (Exoscale).
	AppPrefixRoot = "apps/"
)
