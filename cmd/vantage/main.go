package main

import (
	_ "embed"
	"strings"

	"github.com/joho/godotenv"

	"github.com/novalyte/vantage/internal/cli"
	"github.com/novalyte/vantage/internal/logging"
)

//go:embed VERSION
var versionFile string

var executeCLI = cli.Execute

func run() error {
	// Missing .env is fine, environment variables still apply.
	_ = godotenv.Load()

	version := strings.TrimSpace(versionFile)
	return executeCLI(version)
}

func main() {
	if err := run(); err != nil {
		logging.Fatal("vantage execution failed", "error", err)
	}
}
