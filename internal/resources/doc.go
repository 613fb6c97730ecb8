// Package resources provides MCP resources: read-only documents MCP clients
// can fetch alongside the tools.
//
//   - user://profile describes the caller and the Ads customers it can reach.
//     With OAuth each session sees its own account.
//   - ads://docs/gaql is the GAQL reference also served by get_gaql_doc.
//   - ads://views/{name} is the field table of one reporting view.
package resources
