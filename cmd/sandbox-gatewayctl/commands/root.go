package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/sandbox-gateway/internal/config"
	"github.com/opencode-ai/sandbox-gateway/internal/logging"
	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
)

const (
	Version   = "1.0.0"
	BuildTime = "dev"
)

var (
	directory string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:     "sandbox-gatewayctl",
	Short:   "Operator CLI for sandbox-gateway",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(logLevel)
		logging.Init(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&directory, "directory", "d", "", "Project directory holding .sandbox-gateway/config.json and .env")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("sandbox-gatewayctl %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(tokenCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the working directory and loads gateway configuration,
// the same precedence every other entry point uses.
func loadConfig() (*config.Config, error) {
	workDir := directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(workDir)
}

// openObjectStore opens the object store backend named by cfg, mirroring
// the server entry point's selection.
func openObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStoreBackend {
	case "s3":
		return objectstore.NewS3StoreFromEnv(ctx, cfg.SessionsBucket)
	default:
		return objectstore.NewFSStore(cfg.ObjectStoreRoot)
	}
}
