// Package config loads gate-service settings from an optional config file and
// GATE_* environment variables. Every key has a default, so an empty
// environment yields a runnable file-backed setup.
package config
