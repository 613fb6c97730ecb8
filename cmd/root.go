package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the ads-mcp application
var rootCmd = &cobra.Command{
	Use:   "ads-mcp",
	Short: "Google Ads API MCP server",
	Long: `ads-mcp is a Model Context Protocol (MCP) server that gives AI assistants
read-only access to the Google Ads API.

It can serve:
  - SSE, with the legacy POST /sse handshake (default)
  - Streamable HTTP on /mcp
  - stdio`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	rootCmd.SetVersionTemplate(`{{printf "ads-mcp version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newViewsCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
