// Package config manages the named provider registry persisted on disk.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\proprion\config.ini
//   - Unix: ~/.config/proprion/config.ini
//
// INI format, one section per provider plus an optional proxy section:
//
//	[provider.my-scaleway]
//	type            = scaleway
//	access_key      = SCW...
//	secret_key      = ...
//	organization_id = ...
//	project_id      = ...
//	region          = fr-par
//	bucket          = data
//
//	[provider.my-exoscale]
//	type       = exoscale
//	api_key    = EXO...
//	api_secret = ...
//	zone       = de-fra-1
//	bucket     = data
//
//	[proxy]
//	mode = system
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/proprion/proprion/internal/constants"
)

// Kind identifies a provider variant.
type Kind string

const (
	// KindScaleway is the static-key provider (X-Auth-Token header auth).
	KindScaleway Kind = "scaleway"

	// KindExoscale is the signed-request provider (EXO2-HMAC-SHA256 auth).
	KindExoscale Kind = "exoscale"
)

const providerSectionPrefix = "provider."

// Validation errors
var (
	ErrUnknownProviderKind   = errors.New("unknown provider type")
	ErrMissingAccessKey      = errors.New("access_key is required")
	ErrMissingSecretKey      = errors.New("secret_key is required")
	ErrMissingOrganizationID = errors.New("organization_id is required")
	ErrMissingProjectID      = errors.New("project_id is required")
	ErrMissingRegion         = errors.New("region is required")
	ErrMissingAPIKey         = errors.New("api_key is required")
	ErrMissingAPISecret      = errors.New("api_secret is required")
	ErrMissingZone           = errors.New("zone is required")
	ErrMissingBucket         = errors.New("bucket is required")
)

// Provider is one named credential set. Secret material lives here and is
// handed to clients by value at construction; it is never logged.
type Provider struct {
	Kind Kind `ini:"type"`

	// Scaleway fields
	AccessKey      string `ini:"access_key,omitempty"`
	SecretKey      string `ini:"secret_key,omitempty"`
	OrganizationID string `ini:"organization_id,omitempty"`
	ProjectID      string `ini:"project_id,omitempty"`
	Region         string `ini:"region,omitempty"`

	// Exoscale fields
	APIKey    string `ini:"api_key,omitempty"`
	APISecret string `ini:"api_secret,omitempty"`
	Zone      string `ini:"zone,omitempty"`

	// Shared
	Bucket string `ini:"bucket"`
}

// Proxy configures outbound proxying for all providers.
type Proxy struct {
	Mode     string `ini:"mode,omitempty"`
	Host     string `ini:"host,omitempty"`
	Port     int    `ini:"port,omitempty"`
	User     string `ini:"user,omitempty"`
	Password string `ini:"password,omitempty"`
	NoProxy  string `ini:"no_proxy,omitempty"`
}

// Validate checks that the fields required by the provider's kind are set.
func (p Provider) Validate() error {
	if p.Bucket == "" {
		return ErrMissingBucket
	}
	switch p.Kind {
	case KindScaleway:
		switch {
		case p.AccessKey == "":
			return ErrMissingAccessKey
		case p.SecretKey == "":
			return ErrMissingSecretKey
		case p.OrganizationID == "":
			return ErrMissingOrganizationID
		case p.ProjectID == "":
			return ErrMissingProjectID
		case p.Region == "":
			return ErrMissingRegion
		}
		return nil
	case KindExoscale:
		switch {
		case p.APIKey == "":
			return ErrMissingAPIKey
		case p.APISecret == "":
			return ErrMissingAPISecret
		case p.Zone == "":
			return ErrMissingZone
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProviderKind, p.Kind)
	}
}

// Location returns the provider's region or zone identifier.
func (p Provider) Location() string {
	if p.Kind == KindExoscale {
		return p.Zone
	}
	return p.Region
}

// ObjectStorageEndpoint returns the S3-compatible endpoint for the
// provider's region or zone.
func (p Provider) ObjectStorageEndpoint() string {
	if p.Kind == KindExoscale {
		return fmt.Sprintf(constants.ExoscaleSOSEndpointTemplate, p.Zone)
	}
	return fmt.Sprintf(constants.ScalewayS3EndpointTemplate, p.Region)
}

// ObjectStorageCredentials returns the key pair used for S3-compatible
// calls (bucket creation, bucket policy).
func (p Provider) ObjectStorageCredentials() (accessKey, secretKey string) {
	if p.Kind == KindExoscale {
		return p.APIKey, p.APISecret
	}
	return p.AccessKey, p.SecretKey
}

// Registry is the set of named providers loaded from one config file.
type Registry struct {
	path      string
	providers map[string]Provider
	proxy     Proxy
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", "proprion")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "proprion")
	}

	return filepath.Join(configDir, "config.ini"), nil
}

// Load reads the registry from path. A missing file yields an empty
// registry; a malformed file is an error.
func Load(path string) (*Registry, error) {
	reg := &Registry{
		path:      path,
		providers: make(map[string]Provider),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return reg, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for _, section := range file.Sections() {
		name := section.Name()
		switch {
		case strings.HasPrefix(name, providerSectionPrefix):
			var p Provider
			if err := section.MapTo(&p); err != nil {
				return nil, fmt.Errorf("failed to parse provider section %q: %w", name, err)
			}
			reg.providers[strings.TrimPrefix(name, providerSectionPrefix)] = p
		case name == "proxy":
			if err := section.MapTo(&reg.proxy); err != nil {
				return nil, fmt.Errorf("failed to parse proxy section: %w", err)
			}
		}
	}

	return reg, nil
}

// Save writes the registry back to its path. The file carries secret
// material, so it is created 0600 under a 0700 directory.
func (r *Registry) Save() error {
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}

	file := ini.Empty()
	for _, name := range r.Names() {
		p := r.providers[name]
		section, err := file.NewSection(providerSectionPrefix + name)
		if err != nil {
			return fmt.Errorf("failed to build provider section %q: %w", name, err)
		}
		if err := section.ReflectFrom(&p); err != nil {
			return fmt.Errorf("failed to serialize provider %q: %w", name, err)
		}
	}
	if r.proxy != (Proxy{}) {
		section, err := file.NewSection("proxy")
		if err != nil {
			return fmt.Errorf("failed to build proxy section: %w", err)
		}
		if err := section.ReflectFrom(&r.proxy); err != nil {
			return fmt.Errorf("failed to serialize proxy settings: %w", err)
		}
	}

	if err := file.SaveTo(r.path); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", r.path, err)
	}
	return os.Chmod(r.path, 0600)
}

// Path returns the file path backing this registry.
func (r *Registry) Path() string {
	return r.path
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Set adds or replaces a provider.
func (r *Registry) Set(name string, p Provider) {
	r.providers[name] = p
}

// Remove deletes a provider, reporting whether it existed.
func (r *Registry) Remove(name string) bool {
	_, ok := r.providers[name]
	delete(r.providers, name)
	return ok
}

// Names returns all provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProxySettings returns the shared proxy configuration.
func (r *Registry) ProxySettings() Proxy {
	return r.proxy
}

// SetProxy replaces the shared proxy configuration.
func (r *Registry) SetProxy(p Proxy) {
	r.proxy = p
}
