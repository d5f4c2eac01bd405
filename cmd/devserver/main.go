package main

import (
	"context"
	"os"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/joho/godotenv"

	adaptermiddleware "gamgee/internal/adapters/http/middleware"
	adapterlogger "gamgee/internal/adapters/logger"
	"gamgee/internal/config"
	httpiface "gamgee/internal/interfaces/http"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		adapterlogger.New().Error(context.Background(), "configuration error", "error", err)
		os.Exit(1)
	}
	logger := adapterlogger.NewWithWriter(os.Stdout, adapterlogger.ParseLevel(cfg.LogLevel))
	xray.Configure(xray.Config{LogLevel: "error"})

	routes, err := httpiface.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error(context.Background(), "failed to build functions", "error", err)
		os.Exit(1)
	}
	e := httpiface.NewRouter(routes, httpiface.Middleware{
		XRay:          adaptermiddleware.XRayMiddleware("gamgee-devserver"),
		RequestLogger: adaptermiddleware.RequestLogger(logger),
	})
	for _, r := range routes {
		logger.Debug(context.Background(), "route", "method", r.Method, "path", r.Path, "function", r.Function.Name())
	}
	logger.Info(context.Background(), "starting http server", "port", cfg.Port, "auth_mode", cfg.AuthMode)
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
