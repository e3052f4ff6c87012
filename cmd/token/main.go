package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"pai-backend/cmd"
	"pai-backend/internal/auth"
	"pai-backend/internal/database"

	"github.com/caarlos0/env/v11"
)

type TokenConfig struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"data/pai.db"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
}

// Prints a token for the named user, creating the user if needed. Browsers
// can send it as the pai_token cookie, API clients as a bearer token.
func main() {
	username := flag.String("user", "", "username to issue the token for")
	expiresIn := flag.Duration("expires", 30*24*time.Hour, "token lifetime")

	cmd.LoadEnvFile()

	if *username == "" {
		log.Fatalf("-user is required")
	}

	var cfg TokenConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	user, err := database.GetOrCreateUser(context.Background(), db, *username)
	if err != nil {
		log.Fatalf("error loading user %q: %v", *username, err)
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.JWTSecret)).Generate(user.ID, *expiresIn)
	if err != nil {
		log.Fatalf("error signing token: %v", err)
	}

	log.Printf("issued token for user %q (id %d), expires in %s", user.Username, user.ID, *expiresIn)
	fmt.Println(token)
}
