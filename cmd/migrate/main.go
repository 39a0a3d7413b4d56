package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/markethub/markethub/internal/config"
	"github.com/markethub/markethub/internal/logging"
)

const defaultDir = "migrations"

func main() {
	_ = godotenv.Load()
	logger := logging.New("markethub-migrate")

	cmd := flag.String("cmd", "up", "migration command: up|down|status|create|validate")
	dir := flag.String("dir", defaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	flag.Parse()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Plain().WithError(err).Fatal("set goose dialect")
	}

	ctx := context.Background()

	// create and validate do not need a database.
	switch *cmd {
	case "create":
		if *name == "" {
			fmt.Fprintln(os.Stderr, "missing -name for create")
			os.Exit(1)
		}
		if err := goose.Create(nil, *dir, *name, "sql"); err != nil {
			logger.Plain().WithError(err).Fatal("create migration")
		}
		return

	case "validate":
		migrations, err := goose.CollectMigrations(*dir, 0, goose.MaxVersion)
		if err != nil {
			logger.Plain().WithError(err).Fatal("migration validation failed")
		}
		fmt.Printf("migration validation passed (%d migrations)\n", len(migrations))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Plain().WithError(err).Fatal("load config")
	}

	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("open database")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Plain().WithError(err).Fatal("ping database")
	}

	switch *cmd {
	case "up", "down", "status":
		if err := goose.RunContext(ctx, *cmd, db, *dir); err != nil {
			logger.Plain().WithError(err).WithField("cmd", *cmd).Fatal("goose command failed")
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}
