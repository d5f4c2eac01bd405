package main

import (
	"context"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-xray-sdk-go/xray"

	adapterlogger "gamgee/internal/adapters/logger"
	"gamgee/internal/config"
	httpiface "gamgee/internal/interfaces/http"
)

func main() {
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
	fn, ok := httpiface.Lookup(routes, cfg.Function)
	if !ok {
		logger.Error(context.Background(), "unknown function", "function", cfg.Function)
		os.Exit(1)
	}
	logger.Info(context.Background(), "starting lambda handler", "function", fn.Name(), "method", fn.Method())
	awslambda.Start(fn.ProxyHandler())
}
