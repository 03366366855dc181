// Package config loads, validates, and normalizes Crucible configuration.
//
// Configuration comes from a TOML file (default ~/.config/crucible/config.toml,
// falling back to ./crucible.toml) layered over built-in defaults. Path fields
// are tilde-expanded and made absolute during load so downstream code never
// needs to resolve them again.
package config
