// Command promptreg registers, aliases and loads versioned prompt templates in an
// MLflow prompt registry.
package main

import (
	"context"
	"os"

	"github.com/skosovsky/promptreg/internal/cli"
)

// Set via ldflags: -X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-01-01
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	info := cli.BuildInfo{Version: version, Commit: commit, BuildDate: buildDate}
	os.Exit(cli.Execute(context.Background(), info, os.Args[1:], os.Stdout, os.Stderr))
}
