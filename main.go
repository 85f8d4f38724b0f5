package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"bims/m/internal/api"
	"bims/m/internal/config"
	"bims/m/internal/database"
	"bims/m/internal/migrations"
	"bims/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)
	seed.Load(db)

	handler := api.New(db, cfg.Secret)

	log.Printf("inventory server starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
