// Package config defines the codescope settings tree and loads it from
// config.yaml, a .env file and CODESCOPE_* environment variables, in
// increasing order of precedence. Loaded values are checked with validator
// struct tags before any component sees them.
package config
