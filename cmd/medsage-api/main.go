package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/medsage/medsage-api/internal/config"
	"github.com/medsage/medsage-api/internal/server"
)

func main() {
	log.Println("Starting MedSage API...")

	// A missing .env file is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg := config.Load()

	srv := server.New(cfg)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
