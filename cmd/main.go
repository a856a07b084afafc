package main

import (
	"log/slog"
	"os"

	"github.com/victornm/tquiz/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		slog.Error("tquiz: command failed", "error", err)
		os.Exit(1)
	}
}
