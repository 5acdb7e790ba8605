//go:build ignore

// Bootstrap registers a moderator in the configured database and prints a
// session token for it. With -secret it only prints a fresh JWT_SECRET.
//
//	go run scripts/bootstrap-moderator.go -id lead -name "Lead Reviewer" -tier professional
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"time"

	"edumod/internal/auth"
	"edumod/internal/config"
	"edumod/internal/database"
	"edumod/internal/repository"
	"edumod/internal/roles"
	"edumod/internal/service"
	"edumod/migrations"
)

func main() {
	secret := flag.Bool("secret", false, "print a random JWT_SECRET and exit")
	id := flag.String("id", "", "moderator id")
	name := flag.String("name", "", "display name")
	tierName := flag.String("tier", "professional", "junior, senior or professional")
	flag.Parse()

	if *secret {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			fail("Failed to generate secret: %v", err)
		}
		fmt.Println("Add this to your .env file:")
		fmt.Printf("JWT_SECRET=%s\n", base64.RawStdEncoding.EncodeToString(buf))
		return
	}

	if *id == "" {
		fail("-id is required")
	}
	if *name == "" {
		*name = *id
	}
	tier, err := roles.ParseTier(*tierName)
	if err != nil {
		fail("%v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load configuration: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		fail("bootstrap needs DB_DRIVER=postgres; the memory store does not outlive this process")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		fail("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if _, err := database.NewMigrationExecutor(db.DB, migrations.FS).RunMigrations(ctx); err != nil {
		fail("Failed to run migrations: %v", err)
	}

	mods := service.NewModeratorService(repository.NewPostgresStore(db.DB), roles.DefaultRegistry())
	mod, err := mods.Register(ctx, *id, *name, tier)
	if err != nil {
		fail("Failed to register moderator: %v", err)
	}

	token, _, err := auth.NewService(&cfg.JWT).GenerateToken(mod.ID, mod.Tier)
	if err != nil {
		fail("Failed to issue token: %v", err)
	}
	fmt.Printf("Registered %s (%s, risk ceiling %.1f)\n", mod.ID, mod.Tier, mod.MaxRiskLevel)
	fmt.Printf("Token (valid %s):\n%s\n", cfg.JWT.Expiration, token)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
