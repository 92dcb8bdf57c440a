// seed registers the development account for local testing.
// Idempotent: an existing dev account is left untouched.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/config"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/credential"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/db"
	principalrepo "github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/repository"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/security"
)

const (
	devEmail       = "alice@example.com"
	devPassword    = "correct-pw"
	devDisplayName = "Alice"
)

func main() {
	log := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPool)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer conn.Close()

	registrar := credential.NewRegistrar(principalrepo.NewPostgresRepository(conn), security.NewHasher(cfg.BcryptCost))
	p, err := registrar.Register(ctx, devEmail, devPassword, devDisplayName)
	switch {
	case errors.Is(err, credential.ErrEmailTaken):
		log.WithField("email", devEmail).Info("seed: dev account already exists, skipping")
	case err != nil:
		log.Fatalf("seed: %v", err)
	default:
		log.WithFields(logrus.Fields{"email": devEmail, "principal_id": p.ID}).Info("seed: dev account created")
	}
}
