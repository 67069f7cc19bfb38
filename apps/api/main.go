package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/trezcool/rapor/apps/api/echo"
	"github.com/trezcool/rapor/apps/shared"
	"github.com/trezcool/rapor/core"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := shared.NewLogger(conf, "API")
	dbLogger := shared.NewLogger(conf, "DB")

	stores, err := shared.OpenStores(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = stores.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	validate, translator := shared.NewValidation()
	mailSvc := shared.NewMailService(conf, logger)
	reportSvc := shared.NewReportService(stores, mailSvc, logger, validate)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, engine %q", conf.Build, conf.Database.Engine))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		ReportSvc:  reportSvc,
		Translator: translator,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
