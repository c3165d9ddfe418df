package main

import (
	"context"
	"os"

	"budgetcheck/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.LoadEnvFile()

	ctx, stop := cli.SignalContext(context.Background())
	status := cli.Execute(ctx, version, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(status)
}
