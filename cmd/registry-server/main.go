package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/threshold-secret-registry/cmd/flags"
	"github.com/ruteri/threshold-secret-registry/httpserver"
	"github.com/ruteri/threshold-secret-registry/registry"
	"github.com/urfave/cli/v2"
)

var listenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

func main() {
	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the threshold secret registry API",
		Flags: append([]cli.Flag{
			listenAddrFlag,
			flags.LogServiceFlagFn("registry-server"),
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(listenAddrFlag.Name))

			store := registry.NewMemoryStore()
			engine := registry.NewEngine(store, registry.NewEventLog(logger), logger)
			handler := httpserver.NewHandler(engine, engine.Events(), logger)

			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received", "secrets", store.Len())

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
