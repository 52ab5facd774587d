package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"codepilot/config"
)

var (
	cfgFile string
	rootDir string
	app     *App
)

var rootCmd = &cobra.Command{
	Use:   "codepilot",
	Short: "Local-model code assistant with Gitea context",
	Long: `codepilot reviews source files with a locally hosted model, enriches the
review with repository history from a Gitea server and scans whole projects
into UML diagrams or markdown reports.

Example usage:
  codepilot analyze main.go         # Print diagnostics for one file
  codepilot context main.go         # Review a file with its Gitea history
  codepilot scan uml .              # Build a PlantUML diagram of the project
  codepilot watch .                 # Re-analyze files as they change`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		var store *config.Store
		if cfgFile != "" {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			store = config.NewStore(cfgFile, cfg)
		} else {
			store, err = config.OpenStore(rootDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
		}

		setupLogging(store.Get().Logging.Level)
		app = NewApp(store)
		return nil
	},
}

// Execute runs the root command. Cancelling ctx stops long-running commands
// such as scan and watch.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./codepilot.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "workspace directory (default is current directory)")
}

// setupLogging points the global logger at stderr with the configured level.
// Unknown levels fall back to info.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

// workspace resolves an optional directory argument against the root dir.
func workspace(args []string) (string, error) {
	if len(args) == 0 {
		return rootDir, nil
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	return path, nil
}
