package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/BaSui01/salesflow/config"
	"github.com/BaSui01/salesflow/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// positionalCommands 需要一个数字参数的子命令
var positionalCommands = map[string]bool{"goto": true, "force": true, "steps": true}

// runMigrate 处理 migrate 子命令
func runMigrate(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printMigrateUsage(stdout)
		return fmt.Errorf("missing migrate subcommand")
	}

	command, rest := args[0], args[1:]
	switch command {
	case "help", "-h", "--help":
		printMigrateUsage(stdout)
		return nil
	}

	var positional []string
	if positionalCommands[command] && len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		positional, rest = rest[:1], rest[1:]
	}

	fs := flag.NewFlagSet("migrate "+command, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbURL := fs.String("db-url", "", "Database connection URL (default: from config)")
	all := fs.Bool("all", false, "With 'down': rollback all migrations")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if command == "down" && *all {
		command = "reset"
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *dbURL != "" {
		cfg.Database.URL = *dbURL
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	migrator, err := migration.NewMigratorFromConfig(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)

	return cli.Execute(ctx, command, positional)
}

// printMigrateUsage 打印 migrate 帮助
func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  salesflow migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration (--all to rollback everything)
  steps <n>   Apply n migrations (negative n rolls back)
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  reset       Rollback all migrations
  version     Show current migration version
  status      Show migration status
  info        Show migration summary
  help        Show this help message

Options:
  --config <path>   Path to configuration file (YAML)
  --db-url <url>    Database connection URL (default: from config)

Examples:
  salesflow migrate up
  salesflow migrate up --db-url sqlite://./salesflow.db
  salesflow migrate goto 1
  salesflow migrate force 0
  salesflow migrate down --all`)
}
