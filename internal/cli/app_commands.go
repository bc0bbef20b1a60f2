// Application commands: create-app, list-apps, delete-app.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/proprion/proprion/internal/config"
	"github.com/proprion/proprion/internal/httpclient"
	"github.com/proprion/proprion/internal/iam/providers"
	"github.com/proprion/proprion/internal/progress"
	"github.com/proprion/proprion/internal/provision"
	"github.com/proprion/proprion/internal/storage"
)

// proxyOptions builds the outbound proxy settings from the config file's
// [proxy] section, overridable per-run via PROPRION_PROXY_* env vars.
func proxyOptions(reg *config.Registry) httpclient.ProxyOptions {
	px := reg.ProxySettings()
	opts := httpclient.ProxyOptions{
		Mode:     px.Mode,
		Host:     px.Host,
		Port:     px.Port,
		User:     px.User,
		Password: px.Password,
		NoProxy:  px.NoProxy,
	}

	if v := os.Getenv("PROPRION_PROXY_MODE"); v != "" {
		opts.Mode = v
	}
	if v := os.Getenv("PROPRION_PROXY_HOST"); v != "" {
		opts.Host = v
	}
	if v := os.Getenv("PROPRION_PROXY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			opts.Port = port
		}
	}
	if v := os.Getenv("PROPRION_PROXY_USER"); v != "" {
		opts.User = v
	}
	if v := os.Getenv("PROPRION_PROXY_PASSWORD"); v != "" {
		opts.Password = v
	}
	if v := os.Getenv("PROPRION_NO_PROXY"); v != "" {
		opts.NoProxy = v
	}

	if opts.Mode == "" {
		opts.Mode = "system"
	}
	return opts
}

// buildProvisioner assembles the full stack for one provider entry: proxy-
// aware retrying HTTP client, IAM client, bucket store, orchestrator.
func buildProvisioner(ctx context.Context, providerName string) (*provision.Provisioner, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	p, err := requireProvider(reg, providerName)
	if err != nil {
		return nil, err
	}

	log := GetLogger()
	httpc, err := httpclient.NewRetryable(proxyOptions(reg), log)
	if err != nil {
		return nil, err
	}

	client, err := providers.New(p, httpc, log)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewS3Store(ctx, p, httpc, log)
	if err != nil {
		return nil, err
	}

	pv := provision.New(providerName, p, client, store, log)
	pv.SetWaiter(func(ctx context.Context, d time.Duration) error {
		return progress.Countdown(ctx, d, "Waiting for role propagation")
	})
	return pv, nil
}

// newCreateAppCmd creates the 'create-app' command.
func newCreateAppCmd() *cobra.Command {
	var providerName, appName, description string

	cmd := &cobra.Command{
		Use:   "create-app",
		Short: "Provision scoped credentials for an application",
		Long: `Provision an application on a provider: bucket, IAM principal,
scoped policy, and API key.

The resulting credentials are printed to stdout as JSON exactly once.
The secret cannot be retrieved later; if it is lost, delete the app
and create it again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := provision.ValidateAppName(appName); err != nil {
				return err
			}

			ctx := GetContext()
			pv, err := buildProvisioner(ctx, providerName)
			if err != nil {
				return err
			}

			bundle, err := pv.CreateApp(ctx, appName, description)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(bundle, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, "IMPORTANT: Save the secret_key now - it cannot be retrieved later!")
			fmt.Fprintf(os.Stderr, "This app can ONLY access: s3://%s/%s\n", bundle.Bucket, bundle.Prefix)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "Provider entry name")
	cmd.Flags().StringVar(&appName, "name", "", "Application name ([a-z0-9-], max 60 chars)")
	cmd.Flags().StringVar(&description, "description", "", "Application description")
	cmd.MarkFlagRequired("provider")
	cmd.MarkFlagRequired("name")

	return cmd
}

// newListAppsCmd creates the 'list-apps' command.
func newListAppsCmd() *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "list-apps",
		Short: "List provisioned applications on a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			pv, err := buildProvisioner(ctx, providerName)
			if err != nil {
				return err
			}

			apps, err := pv.ListApps(ctx)
			if err != nil {
				return err
			}
			if len(apps) == 0 {
				fmt.Println("No apps found.")
				return nil
			}
			for _, app := range apps {
				fmt.Printf("  - %s (ID: %s)\n", app.Name, app.PrincipalID)
				if app.Description != "" {
					fmt.Printf("    %s\n", app.Description)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "Provider entry name")
	cmd.MarkFlagRequired("provider")

	return cmd
}

// newDeleteAppCmd creates the 'delete-app' command.
func newDeleteAppCmd() *cobra.Command {
	var providerName, appName string

	cmd := &cobra.Command{
		Use:   "delete-app",
		Short: "Delete an application and revoke its credentials",
		Long: `Delete an application's IAM principal and API keys.

On Exoscale the app's keys are removed before the role itself. On
Scaleway the application delete cascades upstream, and the app's
bucket-policy statement is pruned afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			pv, err := buildProvisioner(ctx, providerName)
			if err != nil {
				return err
			}

			if err := pv.DeleteApp(ctx, appName); err != nil {
				return err
			}
			fmt.Printf("App %q deleted.\n", appName)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "Provider entry name")
	cmd.Flags().StringVar(&appName, "name", "", "Application name")
	cmd.MarkFlagRequired("provider")
	cmd.MarkFlagRequired("name")

	return cmd
}
