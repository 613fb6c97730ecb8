package main

import (
	"github.com/teemow/ads-mcp/cmd"
)

// version is stamped by goreleaser via -ldflags.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
