package main

import (
	"context"
	"os"

	"github.com/auscope/vgljobs/internal/cmd"
)

// Set via -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute(context.Background()))
}
