package main

import (
	"fmt"
	"os"

	"github.com/trezcool/rapor/apps/shared"
	"github.com/trezcool/rapor/core"
)

func main() {
	conf := core.NewConfig()
	logger := shared.NewLogger(conf, "ADMIN")

	stores, err := shared.OpenStores(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	validate, _ := shared.NewValidation()
	cli := commandLine{
		conf:      conf,
		db:        stores.DB,
		reportSvc: shared.NewReportService(stores, shared.NewMailService(conf, logger), logger, validate),
		in:        os.Stdin,
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	if cErr := stores.Close(); cErr != nil {
		logger.Error(fmt.Sprintf("closing database: %v", cErr), cErr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
