package postgres

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"underwriting-service/internal/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var DBStatus bool

// ConnectAndCreateDB connects to the default postgres database, creates the
// service database if it does not exist yet, and returns a connection to it.
func ConnectAndCreateDB(cfg config.PostgresConfig) (*sqlx.DB, error) {
	defaultConnStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password)

	slog.Info("connecting to postgres", "host", cfg.Host, "port", cfg.Port, "user", cfg.Username, "dbname", cfg.DBname)

	defaultDB, err := sql.Open("postgres", defaultConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to default postgres db: %w", err)
	}
	defer defaultDB.Close()

	var exists bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`
	if err := defaultDB.QueryRow(checkQuery, cfg.DBname).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check if database exists: %w", err)
	}

	if !exists {
		if _, err := defaultDB.Exec(fmt.Sprintf(`CREATE DATABASE "%s"`, cfg.DBname)); err != nil {
			return nil, fmt.Errorf("failed to create database %s: %w", cfg.DBname, err)
		}
		slog.Info("database created", "dbname", cfg.DBname)
	}

	targetConnStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.DBname)

	db, err := sqlx.Connect("postgres", targetConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to target database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping target database: %w", err)
	}

	if !exists {
		if err := executeSchema(db); err != nil {
			// Leave schema setup to the operator if the file is missing.
			slog.Warn("failed to execute schema.sql", "error", err)
		}
	}

	DBStatus = true
	return db, nil
}

func executeSchema(db *sqlx.DB) error {
	schemaLocations := []string{
		"schema.sql",
		"./schema.sql",
		"/app/schema.sql",
	}

	var schemaPath string
	for _, location := range schemaLocations {
		if _, err := os.Stat(location); err == nil {
			schemaPath = location
			break
		}
	}
	if schemaPath == "" {
		return fmt.Errorf("schema.sql not found in any expected locations: %v", schemaLocations)
	}

	schemaContent, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema.sql from %s: %w", schemaPath, err)
	}

	slog.Info("executing schema", "path", schemaPath)

	statements := strings.Split(string(schemaContent), ";")
	successCount := 0
	for i, statement := range statements {
		statement = strings.TrimSpace(statement)
		if statement == "" || strings.HasPrefix(statement, "--") {
			continue
		}
		if _, err := db.Exec(statement); err != nil {
			slog.Warn("failed to execute schema statement", "index", i+1, "error", err)
			continue
		}
		successCount++
	}

	slog.Info("schema execution completed", "statements", successCount)
	return nil
}

// RetryConnectOnFailed keeps retrying the database connection until it
// succeeds, replacing *db in place.
func RetryConnectOnFailed(wait time.Duration, db **sqlx.DB, cfg config.PostgresConfig) {
	if DBStatus {
		slog.Warn("false database lost connection alert, abort retry")
		return
	}

	if *db != nil {
		if err := (*db).Ping(); err == nil {
			slog.Info("database connection is healthy, no retry needed")
			return
		}
	}

	newDB, err := ConnectAndCreateDB(cfg)
	if err == nil {
		*db = newDB
		slog.Info("database retry connection succeeded")
		return
	}
	slog.Error("failed to retry database connection", "error", err, "next_retry", wait)
	time.Sleep(wait)

	RetryConnectOnFailed(wait, db, cfg)
}
