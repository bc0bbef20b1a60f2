package provision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/proprion/proprion/internal/config"
	"github.com/proprion/proprion/internal/iam"
	"github.com/proprion/proprion/internal/logging"
)

type fakeClient struct {
	kind       string
	calls      []string
	principals []iam.Principal
	keys       []iam.APIKey
	scoped     *iam.ScopedPolicy

	deletedKeys       []string
	deletedPrincipals []string
	deleteKeyErr      error
}

func (f *fakeClient) Kind() string { return f.kind }

func (f *fakeClient) CreatePrincipal(ctx context.Context, app iam.AppSpec) (*iam.Principal, error) {
	f.calls = append(f.calls, "CreatePrincipal")
	return &iam.Principal{ID: "principal-1", Name: app.Name}, nil
}

func (f *fakeClient) CreateScopedPolicy(ctx context.Context, principalID string, app iam.AppSpec) (*iam.ScopedPolicy, error) {
	f.calls = append(f.calls, "CreateScopedPolicy")
	return f.scoped, nil
}

func (f *fakeClient) CreateAPIKey(ctx context.Context, principalID string, app iam.AppSpec) (*iam.APIKey, error) {
	f.calls = append(f.calls, "CreateAPIKey")
	return &iam.APIKey{AccessKey: "AK1", Secret: "SK1", PrincipalID: principalID}, nil
}

func (f *fakeClient) ListPrincipals(ctx context.Context) ([]iam.Principal, error) {
	f.calls = append(f.calls, "ListPrincipals")
	return f.principals, nil
}

func (f *fakeClient) ListAPIKeys(ctx context.Context) ([]iam.APIKey, error) {
	f.calls = append(f.calls, "ListAPIKeys")
	return f.keys, nil
}

func (f *fakeClient) DeletePrincipal(ctx context.Context, principalID string) error {
	f.calls = append(f.calls, "DeletePrincipal")
	f.deletedPrincipals = append(f.deletedPrincipals, principalID)
	return nil
}

func (f *fakeClient) DeleteAPIKey(ctx context.Context, accessKey string) error {
	f.calls = append(f.calls, "DeleteAPIKey")
	f.deletedKeys = append(f.deletedKeys, accessKey)
	return f.deleteKeyErr
}

type fakeStore struct {
	calls     []string
	policy    []byte
	hasPolicy bool
	put       []byte
}

func (f *fakeStore) EnsureBucket(ctx context.Context, bucket string) error {
	f.calls = append(f.calls, "EnsureBucket")
	return nil
}

func (f *fakeStore) GetBucketPolicy(ctx context.Context, bucket string) ([]byte, bool, error) {
	f.calls = append(f.calls, "GetBucketPolicy")
	return f.policy, f.hasPolicy, nil
}

func (f *fakeStore) PutBucketPolicy(ctx context.Context, bucket string, doc []byte) error {
	f.calls = append(f.calls, "PutBucketPolicy")
	f.put = doc
	f.policy = doc
	f.hasPolicy = true
	return nil
}

func scalewayProvider() config.Provider {
	return config.Provider{
		Kind:           config.KindScaleway,
		AccessKey:      "AK",
		SecretKey:      "SK",
		OrganizationID: "org-1",
		ProjectID:      "proj-1",
		Region:         "fr-par",
		Bucket:         "data",
	}
}

func exoscaleProvider() config.Provider {
	return config.Provider{
		Kind:      config.KindExoscale,
		APIKey:    "EXOKEY",
		APISecret: "EXOSECRET",
		Zone:      "de-fra-1",
		Bucket:    "data",
	}
}

func newTestProvisioner(name string, p config.Provider, client *fakeClient, store *fakeStore) *Provisioner {
	pv := New(name, p, client, store, logging.New(io.Discard))
	pv.wait = func(ctx context.Context, d time.Duration) error {
		client.calls = append(client.calls, "wait")
		return nil
	}
	return pv
}

// TestCreateAppScalewayFlow verifies the five-step static-key flow ending
// in a bucket-policy write, and the bundle contents.
func TestCreateAppScalewayFlow(t *testing.T) {
	client := &fakeClient{kind: "scaleway", scoped: &iam.ScopedPolicy{ID: "pol-1"}}
	store := &fakeStore{}
	pv := newTestProvisioner("scw", scalewayProvider(), client, store)

	bundle, err := pv.CreateApp(context.Background(), "svc-a", "service A")
	if err != nil {
		t.Fatalf("CreateApp() returned error: %v", err)
	}

	wantClient := []string{"CreatePrincipal", "CreateScopedPolicy", "CreateAPIKey"}
	if strings.Join(client.calls, ",") != strings.Join(wantClient, ",") {
		t.Errorf("client calls = %v, want %v", client.calls, wantClient)
	}
	wantStore := []string{"EnsureBucket", "GetBucketPolicy", "PutBucketPolicy"}
	if strings.Join(store.calls, ",") != strings.Join(wantStore, ",") {
		t.Errorf("store calls = %v, want %v", store.calls, wantStore)
	}

	if bundle.AccessKey != "AK1" || bundle.SecretKey != "SK1" {
		t.Errorf("bundle keys = %q/%q", bundle.AccessKey, bundle.SecretKey)
	}
	if bundle.Endpoint != "https://s3.fr-par.scw.cloud" {
		t.Errorf("bundle endpoint = %q", bundle.Endpoint)
	}
	if bundle.Region != "fr-par" || bundle.Zone != "" {
		t.Errorf("bundle region/zone = %q/%q", bundle.Region, bundle.Zone)
	}
	if bundle.Prefix != "apps/svc-a" {
		t.Errorf("bundle prefix = %q, want %q", bundle.Prefix, "apps/svc-a")
	}

	var doc struct {
		Version   string `json:"Version"`
		Statement []struct {
			Sid      string `json:"Sid"`
			Resource string `json:"Resource"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal(store.put, &doc); err != nil {
		t.Fatalf("failed to parse written policy: %v", err)
	}
	if len(doc.Statement) != 1 || doc.Statement[0].Sid != "app-svc-a" {
		t.Fatalf("unexpected policy statements: %+v", doc.Statement)
	}
	if doc.Statement[0].Resource != "data/apps/svc-a/*" {
		t.Errorf("resource = %q, want %q", doc.Statement[0].Resource, "data/apps/svc-a/*")
	}
}

// TestCreateAppExoscaleFlow verifies the signed-request flow: no bucket
// policy calls, a propagation wait between role and key creation, zone in
// the bundle.
func TestCreateAppExoscaleFlow(t *testing.T) {
	client := &fakeClient{kind: "exoscale"}
	store := &fakeStore{}
	pv := newTestProvisioner("exo", exoscaleProvider(), client, store)

	bundle, err := pv.CreateApp(context.Background(), "svc-b", "")
	if err != nil {
		t.Fatalf("CreateApp() returned error: %v", err)
	}

	wantClient := []string{"CreatePrincipal", "CreateScopedPolicy", "wait", "CreateAPIKey"}
	if strings.Join(client.calls, ",") != strings.Join(wantClient, ",") {
		t.Errorf("client calls = %v, want %v", client.calls, wantClient)
	}
	wantStore := []string{"EnsureBucket"}
	if strings.Join(store.calls, ",") != strings.Join(wantStore, ",") {
		t.Errorf("store calls = %v, want %v", store.calls, wantStore)
	}

	if bundle.Endpoint != "https://sos-de-fra-1.exo.io" {
		t.Errorf("bundle endpoint = %q", bundle.Endpoint)
	}
	if bundle.Zone != "de-fra-1" || bundle.Region != "" {
		t.Errorf("bundle region/zone = %q/%q", bundle.Region, bundle.Zone)
	}
	if bundle.Prefix != "apps/svc-b/" {
		t.Errorf("bundle prefix = %q, want %q", bundle.Prefix, "apps/svc-b/")
	}
}

// TestPropagationWaitPrecedesKeyCreation pins the ordering: the fixed
// delay runs after role creation and before key creation, so the key call
// never references a not-yet-propagated role id.
func TestPropagationWaitPrecedesKeyCreation(t *testing.T) {
	client := &fakeClient{kind: "exoscale"}
	pv := newTestProvisioner("exo", exoscaleProvider(), client, &fakeStore{})

	if _, err := pv.CreateApp(context.Background(), "svc-b", ""); err != nil {
		t.Fatalf("CreateApp() returned error: %v", err)
	}

	waitIdx, keyIdx := -1, -1
	for i, call := range client.calls {
		switch call {
		case "wait":
			waitIdx = i
		case "CreateAPIKey":
			keyIdx = i
		}
	}
	if waitIdx == -1 || keyIdx == -1 {
		t.Fatalf("flow incomplete: calls = %v", client.calls)
	}
	if waitIdx > keyIdx {
		t.Errorf("propagation wait ran after CreateAPIKey: calls = %v", client.calls)
	}
}

// TestCreateAppReplacesExistingStatement verifies re-provisioning the same
// app name replaces its statement instead of duplicating it.
func TestCreateAppReplacesExistingStatement(t *testing.T) {
	store := &fakeStore{
		hasPolicy: true,
		policy: []byte(`{"Version":"2023-04-17","Statement":[
			{"Sid":"ops-rule","Effect":"Deny"},
			{"Sid":"app-svc-a","Effect":"Allow","Principal":{"SCW":"application_id:stale"}}
		]}`),
	}
	client := &fakeClient{kind: "scaleway"}
	pv := newTestProvisioner("scw", scalewayProvider(), client, store)

	if _, err := pv.CreateApp(context.Background(), "svc-a", "x"); err != nil {
		t.Fatalf("CreateApp() returned error: %v", err)
	}

	var doc struct {
		Statement []struct {
			Sid       string            `json:"Sid"`
			Principal map[string]string `json:"Principal"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal(store.put, &doc); err != nil {
		t.Fatalf("failed to parse written policy: %v", err)
	}
	if len(doc.Statement) != 2 {
		t.Fatalf("got %d statements, want 2", len(doc.Statement))
	}
	last := doc.Statement[len(doc.Statement)-1]
	if last.Sid != "app-svc-a" {
		t.Errorf("merged statement Sid = %q", last.Sid)
	}
	if last.Principal["SCW"] != "application_id:principal-1" {
		t.Errorf("stale principal survived: %v", last.Principal)
	}
}

// TestCreateAppRejectsInvalidName covers the validation gate.
func TestCreateAppRejectsInvalidName(t *testing.T) {
	pv := newTestProvisioner("scw", scalewayProvider(), &fakeClient{}, &fakeStore{})

	for _, name := range []string{"", "Has-Upper", "under_score", "-leading", "a b", strings.Repeat("a", 61)} {
		if _, err := pv.CreateApp(context.Background(), name, ""); err == nil {
			t.Errorf("name %q accepted", name)
		}
	}
	for _, name := range []string{"svc-a", "a", "0x9", "svc-a-2"} {
		if err := ValidateAppName(name); err != nil {
			t.Errorf("name %q rejected: %v", name, err)
		}
	}
}

// TestDeleteAppExoscaleRemovesKeysFirst verifies key cleanup precedes role
// deletion and only the app's own keys are touched.
func TestDeleteAppExoscaleRemovesKeysFirst(t *testing.T) {
	client := &fakeClient{
		kind: "exoscale",
		principals: []iam.Principal{
			{ID: "role-1", Name: "proprion-svc-b"},
			{ID: "role-2", Name: "manual-role"},
		},
		keys: []iam.APIKey{
			{AccessKey: "K1", PrincipalID: "role-1"},
			{AccessKey: "K2", PrincipalID: "role-2"},
		},
	}
	pv := newTestProvisioner("exo", exoscaleProvider(), client, &fakeStore{})

	if err := pv.DeleteApp(context.Background(), "svc-b"); err != nil {
		t.Fatalf("DeleteApp() returned error: %v", err)
	}
	if len(client.deletedKeys) != 1 || client.deletedKeys[0] != "K1" {
		t.Errorf("deleted keys = %v, want [K1]", client.deletedKeys)
	}
	if len(client.deletedPrincipals) != 1 || client.deletedPrincipals[0] != "role-1" {
		t.Errorf("deleted principals = %v, want [role-1]", client.deletedPrincipals)
	}
}

// TestDeleteAppExoscaleKeyFailureIsBestEffort verifies a key delete error
// does not abort the role delete.
func TestDeleteAppExoscaleKeyFailureIsBestEffort(t *testing.T) {
	client := &fakeClient{
		kind:         "exoscale",
		principals:   []iam.Principal{{ID: "role-1", Name: "proprion-svc-b"}},
		keys:         []iam.APIKey{{AccessKey: "K1", PrincipalID: "role-1"}},
		deleteKeyErr: errors.New("key delete failed"),
	}
	pv := newTestProvisioner("exo", exoscaleProvider(), client, &fakeStore{})

	if err := pv.DeleteApp(context.Background(), "svc-b"); err != nil {
		t.Fatalf("DeleteApp() returned error: %v", err)
	}
	if len(client.deletedPrincipals) != 1 {
		t.Errorf("role not deleted after key failure")
	}
}

// TestDeleteAppScalewayPrunesBucketPolicy verifies the app's statement is
// removed from the bucket policy after the cascade delete.
func TestDeleteAppScalewayPrunesBucketPolicy(t *testing.T) {
	client := &fakeClient{
		kind:       "scaleway",
		principals: []iam.Principal{{ID: "app-id-1", Name: "svc-a"}},
	}
	store := &fakeStore{
		hasPolicy: true,
		policy: []byte(`{"Version":"2023-04-17","Statement":[
			{"Sid":"ops-rule","Effect":"Deny"},
			{"Sid":"app-svc-a","Effect":"Allow"}
		]}`),
	}
	pv := newTestProvisioner("scw", scalewayProvider(), client, store)

	if err := pv.DeleteApp(context.Background(), "svc-a"); err != nil {
		t.Fatalf("DeleteApp() returned error: %v", err)
	}

	var doc struct {
		Statement []struct {
			Sid string `json:"Sid"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal(store.put, &doc); err != nil {
		t.Fatalf("failed to parse written policy: %v", err)
	}
	if len(doc.Statement) != 1 || doc.Statement[0].Sid != "ops-rule" {
		t.Errorf("unexpected statements after delete: %+v", doc.Statement)
	}
}

// TestDeleteAppUnknownName verifies an unknown app is an error.
func TestDeleteAppUnknownName(t *testing.T) {
	pv := newTestProvisioner("exo", exoscaleProvider(), &fakeClient{kind: "exoscale"}, &fakeStore{})
	if err := pv.DeleteApp(context.Background(), "no-such-app"); err == nil {
		t.Errorf("expected error for unknown app")
	}
}

// TestListAppsFiltersManagedRoles verifies the signed-request provider only
// reports proprion-managed roles, with the prefix stripped.
func TestListAppsFiltersManagedRoles(t *testing.T) {
	client := &fakeClient{
		kind: "exoscale",
		principals: []iam.Principal{
			{ID: "role-1", Name: "proprion-svc-b", Description: "b"},
			{ID: "role-2", Name: "manual-role"},
			{ID: "role-3", Name: "proprion-"},
		},
	}
	pv := newTestProvisioner("exo", exoscaleProvider(), client, &fakeStore{})

	apps, err := pv.ListApps(context.Background())
	if err != nil {
		t.Fatalf("ListApps() returned error: %v", err)
	}
	if len(apps) != 1 || apps[0].Name != "svc-b" || apps[0].PrincipalID != "role-1" {
		t.Errorf("apps = %+v", apps)
	}
}

// TestListAppsScalewayReportsAll verifies the static-key provider lists
// applications unfiltered.
func TestListAppsScalewayReportsAll(t *testing.T) {
	client := &fakeClient{
		kind: "scaleway",
		principals: []iam.Principal{
			{ID: "a1", Name: "svc-a"},
			{ID: "a2", Name: "unrelated"},
		},
	}
	pv := newTestProvisioner("scw", scalewayProvider(), client, &fakeStore{})

	apps, err := pv.ListApps(context.Background())
	if err != nil {
		t.Fatalf("ListApps() returned error: %v", err)
	}
	if len(apps) != 2 {
		t.Errorf("got %d apps, want 2", len(apps))
	}
}

// TestCreateAppWaitHonorsCancellation verifies the propagation wait aborts
// on context cancellation.
func TestCreateAppWaitHonorsCancellation(t *testing.T) {
	client := &fakeClient{kind: "exoscale"}
	pv := New("exo", exoscaleProvider(), client, &fakeStore{}, logging.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pv.CreateApp(ctx, "svc-b", "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
