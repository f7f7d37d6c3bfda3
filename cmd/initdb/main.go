// initdb creates the lookup tables, the doi_urls table and the import
// checkpoint table. Safe to run against an existing database.
//
// Usage:
//
//	initdb
//	DATABASE_URL=postgres://... initdb
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/doi-atlas/backend/internal/config"
	"github.com/doi-atlas/backend/internal/repository/postgres"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.CreateSchema(ctx, pool); err != nil {
		fmt.Printf("Schema creation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Schema applied successfully!")
}
