package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/ads-mcp/internal/ads"
	"github.com/teemow/ads-mcp/internal/config"
	"github.com/teemow/ads-mcp/internal/views"
)

func newViewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Manage the reporting view definitions",
	}
	cmd.AddCommand(newViewsRefreshCmd())
	return cmd
}

func newViewsRefreshCmd() *cobra.Command {
	var (
		credentialsPath string
		viewsPath       string
		apiVersion      string
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Regenerate the reporting view definitions",
		Long: `Query the Google Ads field service for every documented reporting view and
write the definitions used by list_reporting_views and get_reporting_view_doc.

The server does the same in the background on startup. Views whose lookup
fails are written without fields; the file is left untouched when no view
produced any fields.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if cmd.Flags().Changed("google-ads-config") {
				cfg.Ads.CredentialsPath = credentialsPath
			}
			if cmd.Flags().Changed("views-path") {
				cfg.Ads.ViewsPath = viewsPath
			}
			if cmd.Flags().Changed("api-version") {
				cfg.Ads.APIVersion = apiVersion
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			provider := ads.NewProvider(ctx, cfg.Ads.CredentialsPath, ads.Options{
				APIVersion: cfg.Ads.APIVersion,
				UserAgent:  "ads-mcp/" + version,
			})
			return runViewsRefresh(ctx, provider, cfg.Ads.ViewsPath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&credentialsPath, "google-ads-config", "", "Path to google-ads.yaml. Can also use GOOGLE_ADS_CONFIGURATION_FILE_PATH env var.")
	cmd.Flags().StringVar(&viewsPath, "views-path", "", "Output path. Can also use GOOGLE_ADS_VIEWS_PATH env var.")
	cmd.Flags().StringVar(&apiVersion, "api-version", config.DefaultAPIVersion, "Google Ads API version. Can also use GOOGLE_ADS_API_VERSION env var.")

	return cmd
}

// runViewsRefresh regenerates the definitions at path and prints a summary.
// Partial failures are reported but do not fail the command.
func runViewsRefresh(ctx context.Context, provider *ads.Provider, path string, out io.Writer) error {
	client, err := provider.Shared(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Google Ads client: %w", err)
	}

	defs, err := views.Refresh(ctx, client, client.APIVersion(), path)
	if defs == nil {
		return fmt.Errorf("failed to refresh views: %w", err)
	}

	fmt.Fprintf(out, "Wrote %d views (Google Ads API %s) to %s\n", len(defs.Views), defs.APIVersion, path)
	for _, v := range defs.Views {
		fmt.Fprintf(out, "  %-20s %d fields\n", v.Name, len(v.Fields))
	}
	if err != nil {
		fmt.Fprintf(out, "Some views could not be documented:\n  %v\n", err)
	}
	return nil
}
