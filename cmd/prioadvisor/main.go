package main

import (
	"os"

	"github.com/me/prioadvisor/internal/cli"
)

func main() {
	// cobra has already printed the error.
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
