package internal

import "time"

// File permission constants
const (
	// DirectoryPermissions is the standard permission for creating directories
	DirectoryPermissions = 0755
)

// Configuration constants
const (
	// ConfigPath is where the server configuration is read from
	ConfigPath = "./config.toml"

	// EnvPrefix prefixes every environment variable overriding the configuration
	EnvPrefix = "OPENKITS_"
)

// Duration constants for commonly used timeouts
const (
	// ShutdownTimeout bounds how long in-flight kit transactions are waited for on shutdown
	ShutdownTimeout = 15 * time.Second

	// ServiceCloseTimeout bounds the shutdown of the placeholder HTTP server
	ServiceCloseTimeout = 5 * time.Second
)
