package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/lotannot/internal/config"
	"github.com/andresmejia3/lotannot/internal/store"
	"github.com/spf13/cobra"
)

var (
	// cfg is the resolved configuration shared by subcommands
	cfg *config.Config
	// configPath is an explicit YAML file; empty means lotannot.yaml if present
	configPath string
	// envFile is loaded into the environment before the config is resolved
	envFile string
	// dbURL overrides the connection string built from the config
	dbURL string
)

// Version is the application version.
const Version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:     "lotannot",
	Short:   "Parking-lot occupancy annotation toolkit",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbURL != "" {
			c.Database.URL = dbURL
		}
		cfg = c
		return nil
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore connects to the annotation index. Only export and reset need it.
func openStore(ctx context.Context) (*store.Store, error) {
	db, err := store.New(ctx, cfg.Database.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default: ./lotannot.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/lotannot)")
}
