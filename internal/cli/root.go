// Package cli wires the shiplift commands: plan, apply, destroy,
// output, and ship.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shiplift-io/shiplift/internal/config"
	"github.com/shiplift-io/shiplift/internal/engine"
	"github.com/shiplift-io/shiplift/internal/logging"
	"github.com/shiplift-io/shiplift/internal/provider"
	"github.com/shiplift-io/shiplift/internal/state"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "shiplift",
	Short: "Declarative single-host deployment infrastructure",
	Long: `Shiplift provisions the infrastructure a deployment needs — an EC2
instance, its security group, and its key pair — by reconciling a
declarative configuration against recorded state, then hands the
deployment off to the provisioned host over SSH.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "shiplift.yaml", "Configuration file path")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(shipCmd)
	rootCmd.AddCommand(versionCmd)
}

// runtimeComponents holds everything a command needs after bootstrap.
type runtimeComponents struct {
	cfg     *config.Config
	engine  *engine.Engine
	backend state.Backend
}

// setup loads configuration and builds the engine and state backend.
func setup(ctx context.Context) (*runtimeComponents, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logging.Init(cfg.Logging.Level, cfg.Logging.Format)

	backend, err := state.NewBackend(ctx, &cfg.Backend, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state backend: %w", err)
	}

	registry := provider.NewRegistry(cfg.ProviderSettings())
	eng := engine.New(registry)

	return &runtimeComponents{cfg: cfg, engine: eng, backend: backend}, nil
}
