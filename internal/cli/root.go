// Package cli provides the command-line interface for proprion.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/proprion/proprion/internal/config"
	"github.com/proprion/proprion/internal/logging"
	"github.com/proprion/proprion/internal/version"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	debug   bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "proprion",
		Short: "Provision scoped S3 credentials for applications",
		Long: `proprion ` + version.Version + ` - Built: ` + version.BuildTime + `
Provisions least-privilege S3 credentials for named applications.

Each app gets its own API key, restricted to a single prefix
(apps/<name>) inside the provider's configured bucket. Supported
backends: Scaleway (IAM applications + bucket policy) and Exoscale
(IAM roles with inline policy).

Credentials are printed to stdout as JSON exactly once, at creation.
They cannot be retrieved again; delete and re-create the app if lost.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefault()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				logging.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	return rootCmd
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newAddProviderCmd())
	rootCmd.AddCommand(newListProvidersCmd())
	rootCmd.AddCommand(newRemoveProviderCmd())
	rootCmd.AddCommand(newConfigPathCmd())
	rootCmd.AddCommand(newCreateAppCmd())
	rootCmd.AddCommand(newListAppsCmd())
	rootCmd.AddCommand(newDeleteAppCmd())
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return logger
}

// GetContext returns the global CLI context. It is cancelled when the
// user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// loadRegistry opens the provider registry at --config or the default
// location.
func loadRegistry() (*config.Registry, error) {
	path := cfgFile
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// requireProvider resolves a named, validated provider entry.
func requireProvider(reg *config.Registry, name string) (config.Provider, error) {
	p, ok := reg.Get(name)
	if !ok {
		return config.Provider{}, fmt.Errorf("provider %q not found; run 'proprion list-providers'", name)
	}
	if err := p.Validate(); err != nil {
		return config.Provider{}, fmt.Errorf("provider %q: %w", name, err)
	}
	return p, nil
}
