// Package config handles loading and validating EDUSAT bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (EDUSAT_*)
//   - Validation of required fields
//   - Default value handling
//
// The defaults match the MCU firmware: 9600 baud, the "c" command prefix,
// voltage[6], current[6] and temperature[4] channels and a 30 Hz broadcast.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Serial.BaudRate)
package config
