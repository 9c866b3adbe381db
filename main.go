package main

import (
	"log"

	"farmpulse/app"
	"farmpulse/config"
)

func main() {
	cfg := config.LoadFromEnv()

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatalf("❌ Application failed: %v", err)
	}
}
