package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/feeledger/apps/shared"
	"github.com/trezcool/feeledger/core"
	logsvc "github.com/trezcool/feeledger/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	app, err := shared.NewApp(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal("setting up application", err)
	}

	// start CLI
	cli := commandLine{app: app}
	if app.Stores.DB != nil {
		cli.db = app.Stores.DB.DB
	}
	err = cli.run(os.Args)
	if cErr := app.Close(); cErr != nil {
		logger.Error("closing connections", cErr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
