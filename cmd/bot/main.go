// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pump-assistant/internal/bot"
	"github.com/rovshanmuradov/pump-assistant/internal/config"
	"github.com/rovshanmuradov/pump-assistant/internal/utils/logger"
)

func main() {
	envFile := flag.String("env", ".env", "path to the .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Starting Pump.fun assistant")

	runner, err := bot.NewRunner(cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize assistant", zap.Error(err))
	}

	if err := runner.Run(context.Background()); err != nil {
		log.Fatal("Assistant execution error", zap.Error(err))
	}
}
