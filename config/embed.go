// Package config embeds the default application configuration.
package config

import _ "embed"

// Default is the built-in conf.default.yaml.
//
//go:embed conf.default.yaml
var Default []byte
