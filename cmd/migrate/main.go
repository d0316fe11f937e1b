package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mockstash.org/internal/migrate"
)

func main() {
	dsn := os.Getenv("MOCKSTASH_PG_DSN")
	if dsn == "" {
		log.Fatal("MOCKSTASH_PG_DSN is required")
	}
	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch cmd {
	case "up":
		if err := migrate.Up(ctx, db); err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		log.Println("migrations applied")
	case "status":
		names, err := migrate.Status(ctx, db)
		if err != nil {
			log.Fatalf("migrate status: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	default:
		log.Fatalf("unknown command %q (want up or status)", cmd)
	}
}
