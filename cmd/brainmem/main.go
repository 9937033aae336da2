package main

import (
	"os"

	"github.com/powerbrain/brainmem-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
