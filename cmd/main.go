package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"parkfee-bot/internal/app"
	"parkfee-bot/internal/config"
	"parkfee-bot/internal/logging"
)

func main() {
	ctx := context.Background()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // best-effort flush

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// ---- Dependencies ----
	application, err := app.New(ctx, cfg, logger, app.Deps{})
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	if application.Memory != nil {
		logger.Warn("sessions are kept in memory; they do not survive cold starts")
	}

	lambda.Start(application.Handler.Handle)
}
