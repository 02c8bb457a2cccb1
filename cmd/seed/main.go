// Command seed populates a development database with demo users, rooms,
// and chat history.
package main

import (
	"context"
	"flag"
	"log"

	"vixogram/internal/config"
	"vixogram/internal/database"
	"vixogram/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	perRoom := flag.Int("messages", 40, "Messages to create per room")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	seedVal := flag.Int64("seed", 0, "Deterministic RNG seed (0 = time-based)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.Options{
		NumUsers:        *numUsers,
		MessagesPerRoom: *perRoom,
		ShouldClean:     *shouldClean,
		Seed:            *seedVal,
	}
	if err := seed.Run(db, opts); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	if _, err := seed.EnsureBotUser(context.Background(), db, cfg); err != nil {
		log.Fatalf("Bot bootstrap failed: %v", err)
	}

	log.Println("Seeding complete")
}
