// Package config loads and validates the benchd TOML configuration. The
// configuration is read once at startup and passed to components by value
// semantics; nothing reads ambient global state after construction.
package config
