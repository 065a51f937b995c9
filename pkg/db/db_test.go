package db

import (
	"testing"

	"shopifybridge/pkg/config"
)

func TestConnStrings(t *testing.T) {
	cfg := config.Config{
		DB: config.DBConfig{Host: "h", Port: "5432", Name: "n", User: "u", Password: "p"},
	}
	if got, want := runtimeConnString(cfg), "postgres://u:p@h:5432/n?sslmode=disable"; got != want {
		t.Fatalf("runtime dsn: got %q, want %q", got, want)
	}

	cfg.DatabaseURL = "postgres://pooler/db?pgbouncer=true"
	if got := runtimeConnString(cfg); got != cfg.DatabaseURL {
		t.Fatalf("expected DATABASE_URL, got %q", got)
	}
	if got := migrationConnString(cfg); got != cfg.DatabaseURL {
		t.Fatalf("expected migration fallback to DATABASE_URL, got %q", got)
	}

	cfg.DirectURL = "postgres://direct/db"
	if got := migrationConnString(cfg); got != cfg.DirectURL {
		t.Fatalf("expected DIRECT_URL for migrations, got %q", got)
	}
}
