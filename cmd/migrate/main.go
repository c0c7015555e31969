package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/carelink/portal/internal/config"
	"github.com/carelink/portal/internal/db"
	"github.com/carelink/portal/internal/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: migrate [-db DATABASE_URL] up|down|status\n")
	flag.PrintDefaults()
}

func main() {
	dbURL := flag.String("db", "", "DATABASE_URL (defaults to the environment)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *dbURL != "" {
		cfg.DatabaseURL = *dbURL
	}
	if cfg.DatabaseURL == "" {
		log.Fatal(config.ErrMissingDatabaseURL)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.Debug)
	gdb, err := db.Connect(cfg.DatabaseURL, logger, cfg.Debug)
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close(gdb)

	ctx := context.Background()
	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = db.Migrate(ctx, gdb)
	case "down":
		err = db.Rollback(ctx, gdb)
	case "status":
		err = db.Status(ctx, gdb, os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", flag.Arg(0), err)
	}
}
