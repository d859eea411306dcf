package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs one job in-process
// and prints the resulting artifact.
func newScrapeCmd() *cobra.Command {
	var (
		mode   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrapes a single URL and prints the JSON artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			jobID, out, runErr := appInstance.Scrape(ctx, args[0], scrape.Mode(mode))
			if jobID == "" && runErr != nil {
				return fmt.Errorf("scrape: %w", runErr)
			}
			data, err := json.MarshalIndent(out.Result, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if output == "" || output == "-" {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(data)); err != nil {
					return fmt.Errorf("write result: %w", err)
				}
			} else if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write result: %w", err)
			}

			zap.L().Info("Scrape command finished.",
				zap.String("job_id", jobID),
				zap.String("status", string(out.Status)),
				zap.String("artifact_url", out.ArtifactURL),
			)
			if runErr != nil {
				return fmt.Errorf("scrape: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "acquisition mode: fast, deep or auto (default from config)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "write the artifact to this file instead of stdout")
	return cmd
}
