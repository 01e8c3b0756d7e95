package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|redo|version|create|validate|list")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory on disk")
	embedded := flag.Bool("embedded", false, "use the migrations compiled into the binary instead of -dir")
	name := flag.String("name", "", "migration name (create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "embedded": *embedded})

	src := migrate.DiskSource(*dir)
	if *embedded {
		src = migrate.EmbeddedSource()
	} else {
		ctx = logg.WithField(ctx, "dir", *dir)
	}

	// offline commands need neither config nor a database
	switch *cmd {
	case "create":
		if *embedded {
			fail("create writes to -dir and cannot target the embedded migrations")
		}
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate", "list":
		files, err := src.Files()
		if err != nil {
			fail("migration validation failed: %v", err)
		}
		if *cmd == "list" {
			for _, f := range files {
				fmt.Printf("%d  %s\n", f.Version, f.Name)
			}
			return
		}
		fmt.Printf("migration validation passed (%d files)\n", len(files))
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "embedded": *embedded, "env": cfg.App.Env})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	switch *cmd {
	case "up", "down", "status", "redo":
		err = migrate.Run(ctx, sqlDB, src, *cmd)
	case "version":
		err = migrate.MigrateToVersion(ctx, sqlDB, src, *version)
	default:
		err = fmt.Errorf("unknown -cmd value %q", *cmd)
	}
	if err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration command complete")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
