package main

import (
	"os"

	"github.com/vigil-sh/vigil/internal/cli"
	"github.com/vigil-sh/vigil/internal/output"
)

func main() {
	if err := cli.Execute(); err != nil {
		output.PrintError(err, false)
		os.Exit(1)
	}
}
