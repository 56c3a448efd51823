// Command seed loads demo users into the database for local development.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/mbd888/paygate/internal/idgen"
	"github.com/mbd888/paygate/internal/users"
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	store := users.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate users table: %v", err)
	}

	demo := []*users.User{
		{Username: "alice", Email: "alice@example.com", FullName: "Alice Anderson", Active: true},
		{Username: "bob", Email: "bob@example.com", FullName: "Bob Brown", Active: true},
		{Username: "carol", Email: "carol@example.com", FullName: "Carol Chen", Active: true},
		{Username: "frozen", Email: "frozen@example.com", FullName: "Frozen Account", Active: false},
	}

	now := time.Now().UTC()
	seeded := 0
	for _, u := range demo {
		u.ID = idgen.WithPrefix("usr_")
		u.CreatedAt = now
		u.UpdatedAt = now
		if err := store.Create(ctx, u); err != nil {
			if errors.Is(err, users.ErrUsernameTaken) {
				log.Printf("skipping %s: already exists", u.Username)
				continue
			}
			log.Fatalf("Failed to seed user %s: %v", u.Username, err)
		}
		log.Printf("seeded %s (%s)", u.Username, u.ID)
		seeded++
	}

	log.Printf("done: %d users seeded", seeded)
}
