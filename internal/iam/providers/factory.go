// Package providers builds the concrete IAM client for a configured
// provider.
package providers

import (
	"fmt"
	nethttp "net/http"

	"github.com/proprion/proprion/internal/config"
	"github.com/proprion/proprion/internal/iam"
	"github.com/proprion/proprion/internal/iam/providers/exoscale"
	"github.com/proprion/proprion/internal/iam/providers/scaleway"
	"github.com/proprion/proprion/internal/logging"
)

// New returns the IAM client for a provider entry. The entry must already
// be validated.
func New(p config.Provider, httpc *nethttp.Client, logger *logging.Logger) (iam.ProviderClient, error) {
	switch p.Kind {
	case config.KindScaleway:
		return scaleway.New(p, httpc, logger)
	case config.KindExoscale:
		return exoscale.New(p, httpc, logger)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProviderKind, p.Kind)
	}
}
