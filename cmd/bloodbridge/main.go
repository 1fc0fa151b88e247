package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "bloodbridge",
		Usage: "Donor availability and matching engine",
		Commands: []*cli.Command{
			serveCommand,
			expirerCommand,
			migrateCommand,
			seedCommand,
			inspectCommand,
			nanoidCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("application failed")
	}
}
