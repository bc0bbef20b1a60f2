// Package iam defines the provider-neutral surface for IAM credential
// provisioning: the client interface both cloud backends implement, the
// request signers, and the shared error taxonomy.
package iam

import (
	"context"

	"github.com/proprion/proprion/internal/constants"
)

// ManagedRoleName returns the Exoscale role name for an application. The
// prefix marks roles created by this tool; listing and deletion match on
// the same derived name, so this is the only place it is built.
func ManagedRoleName(appName string) string {
	return constants.ManagedRolePrefix + appName
}

// AppSpec describes one application to provision: its identity and the
// bucket/prefix scope its credentials are restricted to.
type AppSpec struct {
	Name        string
	Description string
	Bucket      string
	Prefix      string
}

// Principal is a provider identity an API key attaches to: a Scaleway IAM
// application or an Exoscale IAM role. Never cached across invocations;
// always re-fetched or discarded.
type Principal struct {
	ID          string
	Name        string
	Description string
}

// ScopedPolicy is a policy object binding a Principal to bucket-scoped
// permissions. The signed-request provider embeds the policy in the role,
// so its clients return nil here.
type ScopedPolicy struct {
	ID   string
	Name string
}

// APIKey is an access-key/secret pair bound to a Principal. Secret is set
// only on the creation response; it can never be retrieved again.
type APIKey struct {
	Name        string
	AccessKey   string
	Secret      string
	PrincipalID string
}

// ProviderClient is the capability set the orchestrator drives. Both
// backends implement every method; structural differences (sync vs async
// creation, inline vs separate policy) stay behind this interface.
type ProviderClient interface {
	// Kind returns the provider variant identifier ("scaleway", "exoscale").
	Kind() string

	// CreatePrincipal creates the application identity. The signed-request
	// provider creates a role carrying the scoped policy inline, resolves
	// the async operation reference, and returns the referenced role id.
	CreatePrincipal(ctx context.Context, app AppSpec) (*Principal, error)

	// CreateScopedPolicy attaches a least-privilege policy to the
	// principal. Providers whose principal already carries the policy
	// return (nil, nil).
	CreateScopedPolicy(ctx context.Context, principalID string, app AppSpec) (*ScopedPolicy, error)

	// CreateAPIKey creates a key bound to the principal. The returned
	// Secret is guaranteed non-empty; a creation response without a secret
	// fails with ErrMissingSecret.
	CreateAPIKey(ctx context.Context, principalID string, app AppSpec) (*APIKey, error)

	// ListPrincipals returns all principals visible to the credential set.
	ListPrincipals(ctx context.Context) ([]Principal, error)

	// ListAPIKeys returns all API keys visible to the credential set.
	// Secrets are never present in list responses.
	ListAPIKeys(ctx context.Context) ([]APIKey, error)

	// DeletePrincipal deletes the principal. Whether subordinate keys are
	// cascaded is provider-specific; callers that need guaranteed key
	// removal delete keys first via ListAPIKeys/DeleteAPIKey.
	DeletePrincipal(ctx context.Context, principalID string) error

	// DeleteAPIKey deletes one API key by access key.
	DeleteAPIKey(ctx context.Context, accessKey string) error
}
