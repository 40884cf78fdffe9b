package main

import (
	"os"

	"github.com/nanohit/nocturne/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
