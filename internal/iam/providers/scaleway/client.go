// Package scaleway implements the iam.ProviderClient interface against the
// Scaleway IAM API (static-key provider).
//
// Auth is a secret key sent verbatim in the X-Auth-Token header. All
// creation calls are synchronous: the response body is the created
// resource. The bucket policy is NOT applied here; the orchestrator merges
// and writes it through the object-storage layer after key creation.
package scaleway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"

	"github.com/proprion/proprion/internal/config"
	"github.com/proprion/proprion/internal/constants"
	"github.com/proprion/proprion/internal/iam"
	"github.com/proprion/proprion/internal/logging"
	"github.com/proprion/proprion/internal/policy"
)

// Client is a Scaleway IAM API client scoped to one organization/project.
type Client struct {
	httpc          *nethttp.Client
	signer         iam.RequestSigner
	baseURL        string
	organizationID string
	projectID      string
	logger         *logging.Logger
}

// New creates a client from a provider credential set.
func New(p config.Provider, httpc *nethttp.Client, logger *logging.Logger) (*Client, error) {
	signer, err := iam.NewStaticTokenSigner(p.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("scaleway client: %w", err)
	}
	return &Client{
		httpc:          httpc,
		signer:         signer,
		baseURL:        constants.ScalewayIAMBaseURL,
		organizationID: p.OrganizationID,
		projectID:      p.ProjectID,
		logger:         logger,
	}, nil
}

// Response shapes. Scaleway uses snake_case field names.

type application struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type applicationsResponse struct {
	Applications []application `json:"applications"`
}

type policyResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type policiesResponse struct {
	Policies []policyResponse `json:"policies"`
}

type apiKey struct {
	AccessKey     string `json:"access_key"`
	SecretKey     string `json:"secret_key"`
	ApplicationID string `json:"application_id"`
	Description   string `json:"description"`
}

type apiKeysResponse struct {
	APIKeys []apiKey `json:"api_keys"`
}

// Request payloads.

type createApplicationRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	OrganizationID string `json:"organization_id"`
}

type createPolicyRequest struct {
	Name           string        `json:"name"`
	OrganizationID string        `json:"organization_id"`
	ApplicationID  string        `json:"application_id"`
	Rules          []policy.Rule `json:"rules"`
}

type createAPIKeyRequest struct {
	ApplicationID    string `json:"application_id"`
	Description      string `json:"description"`
	DefaultProjectID string `json:"default_project_id,omitempty"`
}

// Kind identifies the provider variant.
func (c *Client) Kind() string {
	return string(config.KindScaleway)
}

// CreatePrincipal creates an IAM application. Synchronous: the response is
// the application itself.
func (c *Client) CreatePrincipal(ctx context.Context, app iam.AppSpec) (*iam.Principal, error) {
	payload := createApplicationRequest{
		Name:           app.Name,
		Description:    app.Description,
		OrganizationID: c.organizationID,
	}

	var created application
	if err := c.do(ctx, "POST", "/applications", payload, &created); err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	c.logger.Debug().Str("application_id", created.ID).Msg("created IAM application")

	return &iam.Principal{
		ID:          created.ID,
		Name:        created.Name,
		Description: created.Description,
	}, nil
}

// CreateScopedPolicy creates the policy binding the application to object
// read/write/delete within the configured project. Never the full-access
// permission set.
func (c *Client) CreateScopedPolicy(ctx context.Context, principalID string, app iam.AppSpec) (*iam.ScopedPolicy, error) {
	payload := createPolicyRequest{
		Name:           app.Name + "-policy",
		OrganizationID: c.organizationID,
		ApplicationID:  principalID,
		Rules:          policy.ObjectStorageRules(c.projectID),
	}

	var created policyResponse
	if err := c.do(ctx, "POST", "/policies", payload, &created); err != nil {
		return nil, fmt.Errorf("create policy: %w", err)
	}

	c.logger.Debug().Str("policy_id", created.ID).Msg("created IAM policy")

	return &iam.ScopedPolicy{ID: created.ID, Name: created.Name}, nil
}

// CreateAPIKey creates a key for the application. The secret is only
// present in this response; its absence is a protocol error.
func (c *Client) CreateAPIKey(ctx context.Context, principalID string, app iam.AppSpec) (*iam.APIKey, error) {
	payload := createAPIKeyRequest{
		ApplicationID:    principalID,
		Description:      "API key for " + app.Name,
		DefaultProjectID: c.projectID,
	}

	var created apiKey
	if err := c.do(ctx, "POST", "/api-keys", payload, &created); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	if created.SecretKey == "" {
		return nil, fmt.Errorf("create api key: %w", iam.ErrMissingSecret)
	}

	return &iam.APIKey{
		Name:        created.Description,
		AccessKey:   created.AccessKey,
		Secret:      created.SecretKey,
		PrincipalID: created.ApplicationID,
	}, nil
}

// ListPrincipals lists the organization's IAM applications.
func (c *Client) ListPrincipals(ctx context.Context) ([]iam.Principal, error) {
	path := "/applications?organization_id=" + c.organizationID

	var resp applicationsResponse
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	principals := make([]iam.Principal, 0, len(resp.Applications))
	for _, app := range resp.Applications {
		principals = append(principals, iam.Principal{
			ID:          app.ID,
			Name:        app.Name,
			Description: app.Description,
		})
	}
	return principals, nil
}

// ListAPIKeys lists the organization's API keys. Secrets are never present
// in list responses.
func (c *Client) ListAPIKeys(ctx context.Context) ([]iam.APIKey, error) {
	path := "/api-keys?organization_id=" + c.organizationID

	var resp apiKeysResponse
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	keys := make([]iam.APIKey, 0, len(resp.APIKeys))
	for _, key := range resp.APIKeys {
		keys = append(keys, iam.APIKey{
			Name:        key.Description,
			AccessKey:   key.AccessKey,
			PrincipalID: key.ApplicationID,
		})
	}
	return keys, nil
}

// ListAPIKeysForApplication lists the keys attached to one application.
func (c *Client) ListAPIKeysForApplication(ctx context.Context, applicationID string) ([]iam.APIKey, error) {
	path := "/api-keys?application_id=" + applicationID

	var resp apiKeysResponse
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list api keys for application: %w", err)
	}

	keys := make([]iam.APIKey, 0, len(resp.APIKeys))
	for _, key := range resp.APIKeys {
		keys = append(keys, iam.APIKey{
			Name:        key.Description,
			AccessKey:   key.AccessKey,
			PrincipalID: key.ApplicationID,
		})
	}
	return keys, nil
}

// ListPolicies lists the policies attached to one application.
func (c *Client) ListPolicies(ctx context.Context, applicationID string) ([]iam.ScopedPolicy, error) {
	path := "/policies?application_id=" + applicationID

	var resp policiesResponse
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}

	policies := make([]iam.ScopedPolicy, 0, len(resp.Policies))
	for _, p := range resp.Policies {
		policies = append(policies, iam.ScopedPolicy{ID: p.ID, Name: p.Name})
	}
	return policies, nil
}

// DeletePrincipal deletes an application. Scaleway cascades deletion of
// attached policies and keys; this client does not verify that.
func (c *Client) DeletePrincipal(ctx context.Context, principalID string) error {
	if err := c.do(ctx, "DELETE", "/applications/"+principalID, nil, nil); err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return nil
}

// DeletePolicy deletes one policy by id.
func (c *Client) DeletePolicy(ctx context.Context, policyID string) error {
	if err := c.do(ctx, "DELETE", "/policies/"+policyID, nil, nil); err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return nil
}

// DeleteAPIKey deletes one API key by access key.
func (c *Client) DeleteAPIKey(ctx context.Context, accessKey string) error {
	if err := c.do(ctx, "DELETE", "/api-keys/"+accessKey, nil, nil); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

// do performs one authenticated request and decodes the response into out
// when non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	token, err := c.signer.Sign(method, path, body)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Auth-Token", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &iam.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return iam.NewAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
