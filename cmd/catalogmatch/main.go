// Package main provides the entry point for the catalogmatch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/catalogmatch/cmd/catalogmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
