package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/you/oobauthsvc/internal/app"
	"github.com/you/oobauthsvc/internal/config"
)

func main() {
	// Local development convenience; the file is absent in deployment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := app.Run(cfg); err != nil {
		log.Fatalf("app: %v", err)
	}
}
