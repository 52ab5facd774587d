package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models installed on the inference server",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the inference server and the Gitea connection",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(statusCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	models := app.Ollama.ListModels(cmd.Context())
	if len(models) == 0 {
		fmt.Println(app.Loc.T("inference.no_models"))
		return nil
	}

	return renderModelsTable(os.Stdout, models, app.Store.Get().Model)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := app.Store.Get()

	if app.Ollama.CheckAvailability(cmd.Context()) {
		fmt.Println(app.Loc.T("status.available", cfg.BaseURL))
	} else {
		fmt.Println(app.Loc.T("inference.unavailable", cfg.BaseURL))
	}

	if app.Gitea.IsConfigured() {
		fmt.Println(app.Loc.T("status.forge_configured", cfg.Gitea.Organization, cfg.Gitea.Repository))
	} else {
		fmt.Println(app.Loc.T("forge.not_configured"))
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
