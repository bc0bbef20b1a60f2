// Provider registry commands: add, list, remove, and config-path.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proprion/proprion/internal/config"
)

// newAddProviderCmd creates the 'add-provider' command group.
func newAddProviderCmd() *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add-provider",
		Short: "Register a cloud provider credential set",
		Long: `Register a named provider entry in the config file.

Secret-valued flags (--secret-key, --api-secret) may be omitted; the
CLI prompts for them without echoing.`,
	}

	addCmd.AddCommand(newAddScalewayCmd())
	addCmd.AddCommand(newAddExoscaleCmd())

	return addCmd
}

func newAddScalewayCmd() *cobra.Command {
	var p config.Provider
	var name string

	cmd := &cobra.Command{
		Use:   "scaleway",
		Short: "Register a Scaleway provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Kind = config.KindScaleway

			secret, err := requireSecret(p.SecretKey, "Secret key")
			if err != nil {
				return err
			}
			p.SecretKey = secret

			if err := p.Validate(); err != nil {
				return err
			}
			return saveProvider(name, p)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Provider entry name")
	cmd.Flags().StringVar(&p.AccessKey, "access-key", "", "Scaleway access key")
	cmd.Flags().StringVar(&p.SecretKey, "secret-key", "", "Scaleway secret key (prompted if omitted)")
	cmd.Flags().StringVar(&p.OrganizationID, "organization-id", "", "Scaleway organization ID")
	cmd.Flags().StringVar(&p.ProjectID, "project-id", "", "Scaleway project ID")
	cmd.Flags().StringVar(&p.Region, "region", "", "Object storage region (e.g. fr-par)")
	cmd.Flags().StringVar(&p.Bucket, "bucket", "", "Bucket apps are provisioned into")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("access-key")
	cmd.MarkFlagRequired("organization-id")
	cmd.MarkFlagRequired("project-id")
	cmd.MarkFlagRequired("region")
	cmd.MarkFlagRequired("bucket")

	return cmd
}

func newAddExoscaleCmd() *cobra.Command {
	var p config.Provider
	var name string

	cmd := &cobra.Command{
		Use:   "exoscale",
		Short: "Register an Exoscale provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Kind = config.KindExoscale

			secret, err := requireSecret(p.APISecret, "API secret")
			if err != nil {
				return err
			}
			p.APISecret = secret

			if err := p.Validate(); err != nil {
				return err
			}
			return saveProvider(name, p)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Provider entry name")
	cmd.Flags().StringVar(&p.APIKey, "api-key", "", "Exoscale API key")
	cmd.Flags().StringVar(&p.APISecret, "api-secret", "", "Exoscale API secret (prompted if omitted)")
	cmd.Flags().StringVar(&p.Zone, "zone", "", "Exoscale zone (e.g. de-fra-1)")
	cmd.Flags().StringVar(&p.Bucket, "bucket", "", "Bucket apps are provisioned into")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("api-key")
	cmd.MarkFlagRequired("zone")
	cmd.MarkFlagRequired("bucket")

	return cmd
}

func saveProvider(name string, p config.Provider) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if _, exists := reg.Get(name); exists {
		return fmt.Errorf("provider %q already exists; remove it first", name)
	}
	reg.Set(name, p)
	if err := reg.Save(); err != nil {
		return err
	}
	fmt.Printf("Provider %q (%s) saved to %s\n", name, p.Kind, reg.Path())
	return nil
}

// newListProvidersCmd creates the 'list-providers' command.
func newListProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-providers",
		Short: "List registered providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			names := reg.Names()
			if len(names) == 0 {
				fmt.Println("No providers configured. Run 'proprion add-provider --help'.")
				return nil
			}
			for _, name := range names {
				p, _ := reg.Get(name)
				fmt.Printf("  %s  type=%s  bucket=%s  location=%s\n", name, p.Kind, p.Bucket, p.Location())
			}
			return nil
		},
	}
}

// newRemoveProviderCmd creates the 'remove-provider' command.
func newRemoveProviderCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "remove-provider",
		Short: "Remove a registered provider",
		Long: `Remove a provider entry from the config file.

Only local configuration is touched; apps already provisioned through
the provider keep working.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			if !reg.Remove(name) {
				return fmt.Errorf("provider %q not found", name)
			}
			if err := reg.Save(); err != nil {
				return err
			}
			fmt.Printf("Provider %q removed.\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Provider entry name")
	cmd.MarkFlagRequired("name")

	return cmd
}

// newConfigPathCmd creates the 'config-path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			fmt.Println(reg.Path())
			return nil
		},
	}
}
