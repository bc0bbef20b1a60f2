// Package exoscale implements the iam.ProviderClient interface against the
// Exoscale v2 API (signed-request provider).
//
// Every request carries an EXO2-HMAC-SHA256 Authorization header computed
// over the method, path, and exact body bytes. Mutating calls are
// asynchronous: the response is an operation record whose reference block
// carries the id of the created resource. Scoping is inline: the role
// created by CreatePrincipal embeds its bucket-prefix policy, so
// CreateScopedPolicy is a no-op here.
package exoscale

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

// Client is an Exoscale v2 API client scoped to one zone.
type Client struct {
	httpc   *nethttp.Client
	signer  iam.RequestSigner
	baseURL string
	logger  *logging.Logger
}

// New creates a client from a provider credential set.
func New(p config.Provider, httpc *nethttp.Client, logger *logging.Logger) (*Client, error) {
	signer, err := iam.NewHMACSigner(p.APIKey, p.APISecret)
	if err != nil {
		return nil, fmt.Errorf("exoscale client: %w", err)
	}
	return &Client{
		httpc:   httpc,
		signer:  signer,
		baseURL: fmt.Sprintf(constants.ExoscaleAPIBaseTemplate, p.Zone),
		logger:  logger,
	}, nil
}

// Response shapes. Exoscale uses kebab-case field names.

type operationResponse struct {
	ID        string              `json:"id"`
	State     string              `json:"state"`
	Reference *operationReference `json:"reference"`
}

type operationReference struct {
	ID      string `json:"id"`
	Link    string `json:"link"`
	Command string `json:"command"`
}

type iamRole struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type iamRolesResponse struct {
	IAMRoles []iamRole `json:"iam-roles"`
}

type apiKeyResponse struct {
	Name   string `json:"name"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
	RoleID string `json:"role-id"`
}

type apiKeysResponse struct {
	APIKeys []apiKeyResponse `json:"api-keys"`
}

// Request payloads.

type createRoleRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Editable    bool              `json:"editable"`
	Policy      policy.RolePolicy `json:"policy"`
}

type createAPIKeyRequest struct {
	Name   string `json:"name"`
	RoleID string `json:"role-id"`
}

// Kind identifies the provider variant.
func (c *Client) Kind() string {
	return string(config.KindExoscale)
}

// CreatePrincipal creates an IAM role with an inline deny-by-default policy
// allowing object access only under the application prefix. Role creation
// is asynchronous; the created role id is taken from the operation
// reference.
func (c *Client) CreatePrincipal(ctx context.Context, app iam.AppSpec) (*iam.Principal, error) {
	name := iam.ManagedRoleName(app.Name)
	payload := createRoleRequest{
		Name:        name,
		Description: app.Description,
		Editable:    false,
		Policy:      policy.SOSRolePolicy(app.Bucket, app.Prefix),
	}

	var op operationResponse
	if err := c.do(ctx, "POST", "/v2/iam-role", payload, &op); err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}
	if op.Reference == nil || op.Reference.ID == "" {
		return nil, fmt.Errorf("create role: %w", iam.ErrMissingReference)
	}

	c.logger.Debug().
		Str("operation_id", op.ID).
		Str("role_id", op.Reference.ID).
		Msg("created IAM role")

	return &iam.Principal{
		ID:          op.Reference.ID,
		Name:        name,
		Description: app.Description,
	}, nil
}

// CreateScopedPolicy is a no-op: the role policy is embedded at role
// creation time.
func (c *Client) CreateScopedPolicy(ctx context.Context, principalID string, app iam.AppSpec) (*iam.ScopedPolicy, error) {
	return nil, nil
}

// CreateAPIKey creates a key bound to the role. Key creation is
// synchronous and the secret is only present in this response.
func (c *Client) CreateAPIKey(ctx context.Context, principalID string, app iam.AppSpec) (*iam.APIKey, error) {
	payload := createAPIKeyRequest{
		Name:   iam.ManagedRoleName(app.Name) + "-key",
		RoleID: principalID,
	}

	var created apiKeyResponse
	if err := c.do(ctx, "POST", "/v2/api-key", payload, &created); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	if created.Secret == "" {
		return nil, fmt.Errorf("create api key: %w", iam.ErrMissingSecret)
	}

	return &iam.APIKey{
		Name:        created.Name,
		AccessKey:   created.Key,
		Secret:      created.Secret,
		PrincipalID: created.RoleID,
	}, nil
}

// ListPrincipals lists all IAM roles in the organization.
func (c *Client) ListPrincipals(ctx context.Context) ([]iam.Principal, error) {
	var resp iamRolesResponse
	if err := c.do(ctx, "GET", "/v2/iam-role", nil, &resp); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	principals := make([]iam.Principal, 0, len(resp.IAMRoles))
	for _, role := range resp.IAMRoles {
		principals = append(principals, iam.Principal{
			ID:          role.ID,
			Name:        role.Name,
			Description: role.Description,
		})
	}
	return principals, nil
}

// ListAPIKeys lists all API keys. Secrets are never present in list
// responses.
func (c *Client) ListAPIKeys(ctx context.Context) ([]iam.APIKey, error) {
	var resp apiKeysResponse
	if err := c.do(ctx, "GET", "/v2/api-key", nil, &resp); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	keys := make([]iam.APIKey, 0, len(resp.APIKeys))
	for _, key := range resp.APIKeys {
		keys = append(keys, iam.APIKey{
			Name:        key.Name,
			AccessKey:   key.Key,
			PrincipalID: key.RoleID,
		})
	}
	return keys, nil
}

// DeletePrincipal deletes a role by id. The returned operation is not
// awaited.
func (c *Client) DeletePrincipal(ctx context.Context, principalID string) error {
	if err := c.do(ctx, "DELETE", "/v2/iam-role/"+principalID, nil, nil); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

// DeleteAPIKey deletes one API key by its access key.
func (c *Client) DeleteAPIKey(ctx context.Context, accessKey string) error {
	if err := c.do(ctx, "DELETE", "/v2/api-key/"+accessKey, nil, nil); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

// do performs one signed request and decodes the response into out when
// non-nil. The signature covers the exact bytes sent as the body, so the
// payload is marshalled once and reused.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	authorization, err := c.signer.Sign(method, path, body)
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
	req.Header.Set("Authorization", authorization)
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
