// Package config resolves the router's startup configuration from
// command-line flags, environment variables, and an optional .env file,
// in that priority order.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds the router's resolved startup configuration.
type Config struct {
	ServerUUID uuid.UUID
	ListenPort uint16
	DebugMode  bool
	LogLevel   string
}

// Load parses, in priority order, command-line flags over environment
// variables over an optional .env file over defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	serverUUID := flag.String("server-uuid", getEnv("SERVER_UUID", uuid.Nil.String()), "UUID the server connection must present")
	listenPort := flag.Uint("listen-port", getEnvUint("LISTEN_PORT", 7575), "http listen port")
	debugMode := flag.Bool("debug-mode", getEnvBool("DEBUG_MODE", false), "enable verbose debug logging")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", ""), "log level (debug, info, warn, error)")
	flag.Parse()

	parsedUUID, err := uuid.Parse(*serverUUID)
	if err != nil {
		return nil, fmt.Errorf("config: parsing --server-uuid: %w", err)
	}

	if *listenPort > 65535 {
		return nil, fmt.Errorf("config: --listen-port %d out of range", *listenPort)
	}

	resolvedLevel := strings.ToLower(*logLevel)
	if resolvedLevel == "" {
		// utils.rs::init_logger's debug/release matrix, collapsed to a
		// two-tier equivalent since pion/logging has no release build tag.
		if *debugMode {
			resolvedLevel = "debug"
		} else {
			resolvedLevel = "info"
		}
	}

	return &Config{
		ServerUUID: parsedUUID,
		ListenPort: uint16(*listenPort),
		DebugMode:  *debugMode,
		LogLevel:   resolvedLevel,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint) uint {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return defaultValue
	}
	return uint(parsed)
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
