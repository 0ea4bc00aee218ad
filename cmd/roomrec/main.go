// Package main is the entry point for the roomrec application.
package main

import (
	"os"

	"github.com/jmylchreest/roomrec/cmd/roomrec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
