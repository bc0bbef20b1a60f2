// Package policy constructs the least-privilege documents the two IAM
// backends understand. Everything here is pure: callers own the I/O.
//
// Bucket and prefix values are substituted verbatim into expression strings
// and resources. They must be validated identifiers before they reach this
// package; the expression grammar does not escape quote characters.
package policy

import (
	"fmt"
)

// Scaleway permission sets granted to an application. Object operations
// only; bucket management and full-access sets are deliberately absent.
var objectStoragePermissionSets = []string{
	"ObjectStorageObjectsRead",
	"ObjectStorageObjectsWrite",
	"ObjectStorageObjectsDelete",
}

// Rule is one Scaleway IAM policy rule.
type Rule struct {
	ProjectIDs         []string `json:"project_ids"`
	PermissionSetNames []string `json:"permission_set_names"`
}

// ObjectStorageRules builds the rule set for a Scaleway scoped policy:
// object read/write/delete within one project.
func ObjectStorageRules(projectID string) []Rule {
	return []Rule{{
		ProjectIDs:         []string{projectID},
		PermissionSetNames: append([]string(nil), objectStoragePermissionSets...),
	}}
}

// RolePolicy is the inline policy embedded in an Exoscale IAM role.
type RolePolicy struct {
	DefaultServiceStrategy string                   `json:"default-service-strategy"`
	Services               map[string]ServicePolicy `json:"services"`
}

// ServicePolicy is the per-service rule list inside a RolePolicy.
type ServicePolicy struct {
	Type  string     `json:"type"`
	Rules []RoleRule `json:"rules,omitempty"`
}

// RoleRule is one allow/deny rule with a server-evaluated expression.
type RoleRule struct {
	Action     string `json:"action"`
	Expression string `json:"expression"`
}

// SOSRolePolicy builds the inline role policy for the signed-request
// provider: every service denied by default, SOS allowed for exactly two
// rules - listing the bucket, and object operations under the prefix.
func SOSRolePolicy(bucket, prefix string) RolePolicy {
	return RolePolicy{
		DefaultServiceStrategy: "deny",
		Services: map[string]ServicePolicy{
			"sos": {
				Type: "rules",
				Rules: []RoleRule{
					{
						// Listing is bucket-wide: clients need it to navigate,
						// and SOS cannot scope list results to a prefix here.
						Action: "allow",
						Expression: fmt.Sprintf(
							"operation == 'list-objects' && resources.bucket == '%s'",
							bucket),
					},
					{
						Action: "allow",
						Expression: fmt.Sprintf(
							"operation in ['get-object', 'put-object', 'delete-object', 'head-object'] && resources.bucket == '%s' && parameters.key.startsWith('%s')",
							bucket, prefix),
					},
				},
			},
		},
	}
}

// Statement is the bucket-policy statement granting one application object
// access under its prefix. Sid is the merge key; see Merge.
type Statement struct {
	Sid       string            `json:"Sid"`
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal"`
	Action    []string          `json:"Action"`
	Resource  string            `json:"Resource"`
}

// StatementSid returns the statement identifier for an application name.
func StatementSid(appName string) string {
	return "app-" + appName
}

// AppStatement builds the bucket-policy statement for one application:
// object get/put/delete on bucket/prefix/*, principal pinned to the IAM
// application id.
func AppStatement(appName, applicationID, bucket, prefix string) Statement {
	return Statement{
		Sid:    StatementSid(appName),
		Effect: "Allow",
		Principal: map[string]string{
			"SCW": "application_id:" + applicationID,
		},
		Action:   []string{"s3:GetObject", "s3:PutObject", "s3:DeleteObject"},
		Resource: fmt.Sprintf("%s/%s/*", bucket, prefix),
	}
}
