// Package config handles loading and validating the KNX/IP device daemon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with KNXIP_* environment variables
//   - Validation of addresses, table sizes and backends
//
// The device capacities act as the firmware's build-time table sizes. They
// are part of the stored layout signature, so editing them makes the next
// load fall back to defaults.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.PhysicalAddress)
package config
