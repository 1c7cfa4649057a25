package cmd

import (
	"context"
	"fmt"
	"package-registry/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:     "package-registry",
	Short:   "A registry for versioned wasm packages",
	Long:    `Publishes packages under OCI-style references and serves search, lookup and download over HTTP.`,
	Version: version,
	// serve is the default command
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./config.yaml)")

	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadConfig() error {
	if err := config.Load(viper.New(), cfgFile, config.Cfg); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	config.InitLogger(config.Cfg)

	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command bound to ctx. args replace the
// process arguments when given.
func ExecuteContext(ctx context.Context, args ...string) error {
	if len(args) > 0 {
		rootCmd.SetArgs(args)
	}

	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
