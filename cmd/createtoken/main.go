// Command createtoken issues a development access token signed with the
// configured JWT secret.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/studymate/studymate-backend/internal/auth"
	"github.com/studymate/studymate-backend/internal/config"
)

func main() {
	var (
		userID = flag.String("user", "", "User ID (default: a new random ID)")
		email  = flag.String("email", "student@example.com", "User email")
		ttl    = flag.Duration("ttl", auth.DevTokenTTL, "Token lifetime")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	id := uuid.New()
	if *userID != "" {
		if id, err = uuid.Parse(*userID); err != nil {
			log.Fatal("Invalid user ID:", err)
		}
	}

	validator := auth.NewTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	token, err := validator.Issue(id, *email, *ttl)
	if err != nil {
		log.Fatal("Failed to issue token:", err)
	}

	fmt.Printf("Access token for %s (user %s):\n", *email, id)
	fmt.Println(token)
	fmt.Println("\nUse it as a bearer token, or as ?token= on WebSocket URLs.")
}
