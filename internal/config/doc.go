// Package config implements configuration loading for the Device Tracking
// Container.
//
// Configuration merges three layers: compiled-in defaults, an optional YAML
// file, and DTC_* environment variable overrides (highest precedence). The
// merged result is validated before use.
package config
