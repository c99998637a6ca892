package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database if needed and apply the schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.DB.ConnStr == "" {
				return fmt.Errorf("migrate needs db.conn_str or DB_CONN_STR")
			}
			return runMigrations(cmd.Context(), a.logger, a.cfg.DB.ConnStr, schema)
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "scripts/schema.sql", "path to the schema script")
	return cmd
}

// runMigrations creates the database if it doesn't exist and runs the schema script
func runMigrations(ctx context.Context, logger zerolog.Logger, connStr, schemaPath string) error {
	logger.Info().Msg("runMigrations | running database migrations")

	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name not found in connection string")
	}

	base := *u
	base.Path = "/postgres"
	baseDB, err := sqlx.ConnectContext(ctx, "postgres", base.String())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer baseDB.Close()

	var exists bool
	if err := baseDB.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName); err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if !exists {
		logger.Info().Str("database", dbName).Msg("runMigrations | creating database")
		if _, err := baseDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName)); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	conn, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	schemaSQL, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", schemaPath, err)
	}
	if _, err := conn.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute %s: %w", schemaPath, err)
	}

	logger.Info().Msg("runMigrations | database migrations completed")
	return nil
}
