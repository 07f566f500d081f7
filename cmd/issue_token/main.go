// Command issue_token mints access or share tokens for local testing.
//
//	issue_token -user 1 -nickname ada
//	issue_token -share <drawing-id> -permission view
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"drawboard/internal/auth"
	"drawboard/internal/protocol"
)

func main() {
	userID := flag.Int64("user", 0, "user id for an access token")
	nickname := flag.String("nickname", "", "nickname claim for an access token")
	drawingID := flag.String("share", "", "drawing id for a share token")
	permission := flag.String("permission", "view", "share permission: view or edit")
	expiry := flag.Duration("expiry", 24*time.Hour, "token lifetime")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	m := auth.NewJWTManager(secret, *expiry, *expiry)

	switch {
	case *drawingID != "":
		perm := protocol.Permission(*permission)
		if !perm.Valid() {
			log.Fatalf("invalid permission %q", *permission)
		}
		token, err := m.GenerateShareToken(*drawingID, perm)
		if err != nil {
			log.Fatalf("Failed to issue share token: %v", err)
		}
		fmt.Println(token)

	case *userID != 0:
		token, err := m.GenerateAccessToken(*userID, *nickname)
		if err != nil {
			log.Fatalf("Failed to issue access token: %v", err)
		}
		fmt.Println(token)

	default:
		flag.Usage()
		os.Exit(2)
	}
}
