// Package main is the entry point for thv-roster.
package main

import (
	"os"

	"github.com/stacklok/toolhive-roster/cmd/thv-roster/app"
	"github.com/stacklok/toolhive-roster/internal/logger"
)

func main() {
	defer logger.Sync()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
