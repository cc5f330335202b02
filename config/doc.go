// Package config provides unified configuration loading for chatkernel:
// defaults, overlaid by an optional YAML file, overlaid by environment
// variables.
package config
