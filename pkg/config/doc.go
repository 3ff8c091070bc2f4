// Package config loads taskhub configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file named by TASKHUB_CONFIG_FILE, then environment variables. The result
// is validated before it is returned.
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatalf("invalid configuration: %v", err)
//	}
//
// Durations accept Go duration syntax plus a "d" suffix for days, so
// REFRESH_TOKEN_EXPIRY=7d works as expected.
package config
