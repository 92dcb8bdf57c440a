// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate -direction up.
package main

import (
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/config"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	log := logrus.New()
	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	if err := migrate.Run(cfg.DatabaseURL, dir, log); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}
