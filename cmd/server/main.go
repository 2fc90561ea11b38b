package main

import (
	"context"
	"log"
	"os"

	"github.com/quintessa-dev/Automacao-de-editais/internal/api"
	"github.com/quintessa-dev/Automacao-de-editais/internal/providers"
	"github.com/quintessa-dev/Automacao-de-editais/internal/store"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	ctx := context.Background()
	pool, err := store.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := store.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	reg, err := providers.LoadRegistry("internal/providers/config/sources.yaml")
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	srv := api.NewServer(store.NewStore(pool), reg)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
