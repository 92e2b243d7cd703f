// Package config handles loading and validating graynotify configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYNOTIFY_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Secrets (MQTT password, InfluxDB token, JWT secret) should be supplied
// through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Sources.WiredName)
package config
