// Package main runs the versioned schema migrations.
//
// Usage:
//
//	migrate up
//	migrate down [n]
//	migrate version
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"edu-ai-gateway/internal/config"
	"edu-ai-gateway/internal/database"

	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: migrate up | down [n] | version")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	migrator, err := database.NewMigrator(cfg.Database.GetURL(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	switch args[0] {
	case "up":
		return migrator.Up()
	case "down":
		n := 1
		if len(args) > 1 {
			n, err = strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
		}
		return migrator.Down(n)
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
