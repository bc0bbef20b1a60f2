// Package provision drives the end-to-end credential provisioning flow:
// bucket, principal, scoped policy, API key, and the final access grant.
// The flow is linear with no rollback: a mid-flight failure leaves the
// steps already taken in place, and the error tells the operator where it
// stopped.
package provision

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/proprion/proprion/internal/config"
	"github.com/proprion/proprion/internal/constants"
	"github.com/proprion/proprion/internal/iam"
	"github.com/proprion/proprion/internal/logging"
	"github.com/proprion/proprion/internal/policy"
	"github.com/proprion/proprion/internal/storage"
)

// appNamePattern constrains application names to a shape that is safe to
// substitute into policy expressions, resource paths, and provider
// resource names.
var appNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

const maxAppNameLength = 60

// ValidateAppName rejects names that could break out of the policy
// expression grammar or collide with provider naming rules.
func ValidateAppName(name string) error {
	if name == "" {
		return fmt.Errorf("app name is required")
	}
	if len(name) > maxAppNameLength {
		return fmt.Errorf("app name %q exceeds %d characters", name, maxAppNameLength)
	}
	if !appNamePattern.MatchString(name) {
		return fmt.Errorf("app name %q is invalid: use lowercase letters, digits, and hyphens, starting with a letter or digit", name)
	}
	return nil
}

// Bundle is the credential set emitted after a successful provisioning
// run. It is the only output written to stdout.
type Bundle struct {
	App       string `json:"app"`
	Provider  string `json:"provider"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region,omitempty"`
	Zone      string `json:"zone,omitempty"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
}

// App is one provisioned application as reported by ListApps.
type App struct {
	Name        string
	PrincipalID string
	Description string
}

// Provisioner orchestrates one provider entry: its IAM client for
// identities and keys, its bucket store for the bucket and (on the
// static-key provider) the bucket policy.
type Provisioner struct {
	providerName string
	provider     config.Provider
	client       iam.ProviderClient
	store        storage.BucketStore
	logger       *logging.Logger

	// wait blocks for d or until ctx is cancelled. Replaceable in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// New builds a provisioner for one configured provider.
func New(providerName string, p config.Provider, client iam.ProviderClient, store storage.BucketStore, logger *logging.Logger) *Provisioner {
	return &Provisioner{
		providerName: providerName,
		provider:     p,
		client:       client,
		store:        store,
		logger:       logger,
		wait:         waitFor,
	}
}

// SetWaiter replaces the propagation wait. The CLI installs a countdown
// renderer here; tests install a recorder.
func (pv *Provisioner) SetWaiter(wait func(ctx context.Context, d time.Duration) error) {
	pv.wait = wait
}

func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AppPrefix returns the object key prefix for an application. The
// signed-request provider's policy expression matches keys with
// startsWith, so its prefix carries a trailing slash; the static-key
// provider's prefix is joined into a resource pattern that adds the
// separator itself.
func AppPrefix(kind config.Kind, appName string) string {
	prefix := constants.AppPrefixRoot + appName
	if kind == config.KindExoscale {
		prefix += "/"
	}
	return prefix
}

// CreateApp provisions credentials for one application and returns the
// bundle. Re-running for an existing app name fails at principal creation
// on providers that enforce name uniqueness; re-running after a partial
// failure requires deleting the app first.
func (pv *Provisioner) CreateApp(ctx context.Context, name, description string) (*Bundle, error) {
	if err := ValidateAppName(name); err != nil {
		return nil, err
	}
	if description == "" {
		description = "Provisioned by proprion"
	}

	app := iam.AppSpec{
		Name:        name,
		Description: description,
		Bucket:      pv.provider.Bucket,
		Prefix:      AppPrefix(pv.provider.Kind, name),
	}

	pv.logger.Info().
		Str("app", name).
		Str("provider", pv.providerName).
		Str("bucket", app.Bucket).
		Str("prefix", app.Prefix).
		Msg("provisioning application")

	if err := pv.store.EnsureBucket(ctx, app.Bucket); err != nil {
		return nil, err
	}

	principal, err := pv.client.CreatePrincipal(ctx, app)
	if err != nil {
		return nil, err
	}
	pv.logger.Info().Str("principal_id", principal.ID).Msg("principal created")

	scoped, err := pv.client.CreateScopedPolicy(ctx, principal.ID, app)
	if err != nil {
		return nil, err
	}
	if scoped != nil {
		pv.logger.Info().Str("policy_id", scoped.ID).Msg("scoped policy created")
	}

	if pv.provider.Kind == config.KindExoscale {
		// Role creation reports success before IAM propagation completes;
		// creating a key against a not-yet-propagated role id fails, so the
		// key call waits the fixed delay out first.
		pv.logger.Info().
			Dur("delay", constants.RolePropagationDelay).
			Msg("waiting for role propagation")
		if err := pv.wait(ctx, constants.RolePropagationDelay); err != nil {
			return nil, err
		}
	}

	key, err := pv.client.CreateAPIKey(ctx, principal.ID, app)
	if err != nil {
		return nil, err
	}
	pv.logger.Info().Str("access_key", key.AccessKey).Msg("api key created")

	if pv.provider.Kind == config.KindScaleway {
		if err := pv.grantBucketAccess(ctx, app, principal.ID); err != nil {
			return nil, err
		}
	}

	bundle := &Bundle{
		App:       name,
		Provider:  pv.providerName,
		AccessKey: key.AccessKey,
		SecretKey: key.Secret,
		Endpoint:  pv.provider.ObjectStorageEndpoint(),
		Bucket:    app.Bucket,
		Prefix:    app.Prefix,
	}
	switch pv.provider.Kind {
	case config.KindScaleway:
		bundle.Region = pv.provider.Region
	case config.KindExoscale:
		bundle.Zone = pv.provider.Zone
	}
	return bundle, nil
}

// grantBucketAccess merges the application's statement into the bucket
// policy. Read-merge-write; not safe against concurrent writers on the
// same bucket.
func (pv *Provisioner) grantBucketAccess(ctx context.Context, app iam.AppSpec, principalID string) error {
	raw, exists, err := pv.store.GetBucketPolicy(ctx, app.Bucket)
	if err != nil {
		return err
	}

	var doc *policy.Document
	if exists {
		doc, err = policy.ParseDocument(raw)
		if err != nil {
			return err
		}
	}

	merged, err := policy.Merge(doc, policy.AppStatement(app.Name, principalID, app.Bucket, app.Prefix))
	if err != nil {
		return err
	}
	encoded, err := merged.Encode()
	if err != nil {
		return err
	}

	pv.logger.Info().
		Str("bucket", app.Bucket).
		Str("sid", policy.StatementSid(app.Name)).
		Msg("applying bucket policy")
	return pv.store.PutBucketPolicy(ctx, app.Bucket, encoded)
}

// ListApps returns the applications provisioned under this provider. On
// the signed-request provider only managed roles (name prefix "proprion-")
// are reported, with the prefix stripped; the static-key provider lists
// its IAM applications as-is.
func (pv *Provisioner) ListApps(ctx context.Context) ([]App, error) {
	principals, err := pv.client.ListPrincipals(ctx)
	if err != nil {
		return nil, err
	}

	apps := make([]App, 0, len(principals))
	for _, p := range principals {
		name := p.Name
		if pv.provider.Kind == config.KindExoscale {
			if len(name) <= len(constants.ManagedRolePrefix) ||
				name[:len(constants.ManagedRolePrefix)] != constants.ManagedRolePrefix {
				continue
			}
			name = name[len(constants.ManagedRolePrefix):]
		}
		apps = append(apps, App{
			Name:        name,
			PrincipalID: p.ID,
			Description: p.Description,
		})
	}
	return apps, nil
}

// DeleteApp removes an application's principal, keys, and (on the
// static-key provider) its bucket-policy statement.
func (pv *Provisioner) DeleteApp(ctx context.Context, name string) error {
	if err := ValidateAppName(name); err != nil {
		return err
	}

	principal, err := pv.findPrincipal(ctx, name)
	if err != nil {
		return err
	}

	if pv.provider.Kind == config.KindExoscale {
		// Role deletion does not cascade to keys; remove them first.
		// Key removal is best-effort: the role delete below is what
		// actually revokes access.
		keys, err := pv.client.ListAPIKeys(ctx)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if key.PrincipalID != principal.ID {
				continue
			}
			if err := pv.client.DeleteAPIKey(ctx, key.AccessKey); err != nil {
				pv.logger.Warn().
					Str("access_key", key.AccessKey).
					Err(err).
					Msg("failed to delete api key")
			}
		}
	}

	pv.logger.Info().
		Str("app", name).
		Str("principal_id", principal.ID).
		Msg("deleting principal")
	if err := pv.client.DeletePrincipal(ctx, principal.ID); err != nil {
		return err
	}

	if pv.provider.Kind == config.KindScaleway {
		if err := pv.revokeBucketAccess(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// revokeBucketAccess prunes the application's statement from the bucket
// policy. A bucket without a policy, or a policy without the statement, is
// not an error.
func (pv *Provisioner) revokeBucketAccess(ctx context.Context, name string) error {
	bucket := pv.provider.Bucket
	raw, exists, err := pv.store.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	doc, err := policy.ParseDocument(raw)
	if err != nil {
		return err
	}
	pruned, removed := policy.Remove(doc, policy.StatementSid(name))
	if !removed {
		return nil
	}

	encoded, err := pruned.Encode()
	if err != nil {
		return err
	}
	pv.logger.Info().
		Str("bucket", bucket).
		Str("sid", policy.StatementSid(name)).
		Msg("removing bucket policy statement")
	return pv.store.PutBucketPolicy(ctx, bucket, encoded)
}

// findPrincipal resolves an app name to its principal under the provider's
// naming scheme.
func (pv *Provisioner) findPrincipal(ctx context.Context, name string) (*iam.Principal, error) {
	want := name
	if pv.provider.Kind == config.KindExoscale {
		want = iam.ManagedRoleName(name)
	}

	principals, err := pv.client.ListPrincipals(ctx)
	if err != nil {
		return nil, err
	}
	for i := range principals {
		if principals[i].Name == want {
			return &principals[i], nil
		}
	}
	return nil, fmt.Errorf("app %q not found on provider %q", name, pv.providerName)
}
