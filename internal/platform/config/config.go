// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server needs at startup. Ledger economics
// (registration fee, levy amount) are not configured here: they are fixed by
// the one-time initialize operation.
type Config struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	KafkaBrokers    []string
	KafkaTopic      string
	TokenServiceURL string
	ModuleAccount   string
	AdminTokenHash  string
	JWTSigningKey   string
	RefMatchMode    string
	AuditBuffer     int
	ShutdownTimeout time.Duration
}

// FromEnv reads configuration from environment variables, applying
// development defaults where safe.
func FromEnv() Config {
	cfg := Config{
		Addr:            getenv("ATTESTRY_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaTopic:      getenv("KAFKA_AUDIT_TOPIC", "attestry.audit"),
		TokenServiceURL: os.Getenv("TOKEN_SERVICE_URL"),
		ModuleAccount:   getenv("MODULE_ACCOUNT", "attestry-module"),
		AdminTokenHash:  os.Getenv("ADMIN_TOKEN_HASH"),
		JWTSigningKey:   getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		RefMatchMode:    getenv("REF_MATCH_MODE", "payer-only"),
		AuditBuffer:     256,
		ShutdownTimeout: 10 * time.Second,
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
