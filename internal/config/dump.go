package config

import "gopkg.in/yaml.v3"

const redacted = "******"

// Dump renders cfg as YAML with secrets masked.
func Dump(cfg Config) ([]byte, error) {
	if cfg.AccessToken != "" {
		cfg.AccessToken = redacted
	}
	if cfg.StateStore.RedisPassword != "" {
		cfg.StateStore.RedisPassword = redacted
	}
	return yaml.Marshal(cfg)
}
