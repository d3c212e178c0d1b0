package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ignite/studio-automation/internal/bootstrap"
	"github.com/ignite/studio-automation/internal/pkg/logger"
	"github.com/ignite/studio-automation/internal/repository/postgres"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	dir := flag.String("dir", "", "migrations directory (defaults to database.migrations_dir)")
	listOnly := flag.Bool("list", false, "list migration files and exit")
	flag.Parse()

	cfg, flush, err := bootstrap.Init(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	if *dir == "" {
		*dir = cfg.Database.MigrationsDir
	}

	if *listOnly {
		files, err := postgres.MigrationFiles(*dir)
		if err != nil {
			logger.Error("list migrations", "error", err)
			exit(flush)
		}
		for _, f := range files {
			fmt.Println(" ", f)
		}
		fmt.Printf("Total: %d files\n", len(files))
		return
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect", "error", err)
		exit(flush)
	}
	defer db.Close()

	n, err := postgres.Migrate(ctx, db, *dir)
	if err != nil {
		db.Close()
		logger.Error("migration failed", "applied", n, "error", err)
		exit(flush)
	}
	logger.Info("migrations complete", "applied", n, "dir", *dir)
}

func exit(flush func()) {
	flush()
	os.Exit(1)
}
