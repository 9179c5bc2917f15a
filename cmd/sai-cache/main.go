package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/sai"
	"github.com/saiset-co/sai-cache/service"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the service config")
	flag.Parse()

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := service.NewService(mainCtx, *configPath)
	if err != nil {
		fmt.Printf("Failed to create service: %v\n", err)
		os.Exit(1)
	}

	cfg := sai.Config().GetConfig()
	sai.Logger().Info("Configuration loaded",
		zap.String("name", cfg.Name),
		zap.String("version", cfg.Version))

	if err := svc.Start(); err != nil {
		sai.Logger().ErrorWithErrStack("Failed to start service", err)
		os.Exit(1)
	}
}
