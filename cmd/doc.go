// Package cmd implements the command-line interface for ads-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server (the default when no subcommand is given)
//   - views refresh: Regenerate the reporting view definitions
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
