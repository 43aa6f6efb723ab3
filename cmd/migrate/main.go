package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"smartbank/internal/config"
	"smartbank/internal/db"
	"smartbank/internal/logger"
)

const downMarker = "-- +migrate Down"

func main() {
	dir := flag.String("dir", "migrations", "directory holding the *.sql files")
	flag.Parse()

	cfg := config.Load()
	logg, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logg.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	ctx := context.Background()
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		logg.Fatal("failed to ensure schema_migrations", zap.Error(err))
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil {
		logg.Fatal("failed to read migrations", zap.Error(err))
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			logg.Fatal("failed to read migration state", zap.Error(err))
		}
		if exists {
			continue
		}
		if err := db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
			if err := applyFile(ctx, tx, file); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename)
			return err
		}); err != nil {
			logg.Fatal("failed to apply migration", zap.String("file", filename), zap.Error(err))
		}
		logg.Info("applied migration", zap.String("file", filename))
		applied++
	}
	logg.Info("migrations complete", zap.Int("applied", applied), zap.Int("total", len(files)))
}

// applyFile runs the statements above the down marker.
func applyFile(ctx context.Context, tx *sqlx.Tx, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	up, _, _ := strings.Cut(string(content), downMarker)
	for _, stmt := range splitSQL(up) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitSQL cuts on lines ending a statement. Comment lines are dropped.
func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
