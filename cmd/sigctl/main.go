package main

import (
	"os"

	"github.com/wonny/sigapi/cmd/sigctl/commands"
)

// main is the entry point for the sigctl CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/sigctl [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
