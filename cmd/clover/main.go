package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "clover",
		Usage:   "Match grocery listings across sources into canonical products",
		Version: version,
		Commands: []*cli.Command{
			ingestCommand(),
			migrateCommand(),
			matchCommand(),
			reviewCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
