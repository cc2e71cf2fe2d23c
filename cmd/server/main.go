package main

import (
	"log/slog"
	"os"

	"github.com/ClearMeasureLabs/onion8-flyway/cmd/server/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		slog.Error("Command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
