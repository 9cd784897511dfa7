package main

import (
	"log/slog"
	"os"

	"librarycatalog/internal/logger"

	"github.com/alecthomas/kong"
)

func main() {
	loadEnvFiles()
	logger.SetupDefault(os.Stderr, "text", "info")

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("migrate"),
		kong.Description("Apply, roll back and inspect the catalog schema migrations."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		slog.Error("migration command failed", "error", err)
		os.Exit(1)
	}
}
