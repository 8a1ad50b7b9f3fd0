// Package config loads the environment-driven settings that select the
// document store endpoint, per the core's only external configuration
// surface: MONGO_URI and MONGO_DB_NAME.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// DefaultDBName is used when MONGO_DB_NAME is unset.
const DefaultDBName = "harvest"

// Config is the process-wide environment configuration.
type Config struct {
	MongoURI    string
	MongoDBName string
}

// Load optionally reads a .env file (ignored if absent — that is the
// normal case in production, where real environment variables are set
// by the deployment platform instead) and then reads MONGO_URI and
// MONGO_DB_NAME from the process environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		MongoURI:    os.Getenv("MONGO_URI"),
		MongoDBName: os.Getenv("MONGO_DB_NAME"),
	}
	if cfg.MongoDBName == "" {
		cfg.MongoDBName = DefaultDBName
	}
	return cfg
}
