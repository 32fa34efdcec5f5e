// Package main is the entry point for the serper CLI.
package main

import (
	"os"

	"github.com/FranksOps/serper/cmd/serper/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
