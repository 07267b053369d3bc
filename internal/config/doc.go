// Package config loads the gateway's settings from a layered set of sources.
//
// Load merges, in increasing precedence:
//
//  1. Default() — safe local-development defaults.
//  2. .sandbox-gateway/config.json(c) under the given directory.
//  3. .env in the given directory (via joho/godotenv).
//  4. Process environment variables, which always win.
//
// JSONC files are accepted (// and /* */ comments stripped before
// unmarshaling) so operators can annotate their config in place.
package config
