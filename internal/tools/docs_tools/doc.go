// Package docs_tools provides MCP tools that document the Google Ads query
// surface: the GAQL grammar and the fields of common reporting views.
//
// The GAQL reference is embedded in the binary. Reporting views come from
// the view-definitions artifact written by `ads-mcp views refresh` or the
// background bootstrap, falling back to the built-in view list.
package docs_tools
