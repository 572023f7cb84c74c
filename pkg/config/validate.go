// Package config loads and validates service configuration.
package config

import (
	"fmt"
	"strings"
)

// ValidateCore ensures critical configuration is present and coherent.
func (c *Config) ValidateCore() error {
	var problems []string

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		problems = append(problems, fmt.Sprintf("DATABASE_DRIVER (unsupported %q)", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		problems = append(problems, "DATABASE_URL")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		problems = append(problems, "SERVER_PORT")
	}
	if c.Settlement.Delay <= 0 {
		problems = append(problems, "SETTLEMENT_DELAY (must be positive)")
	}
	if c.Redis.URL != "" && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		problems = append(problems, "RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW (must be positive)")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}

	return nil
}
