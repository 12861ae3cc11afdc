package config

import "fmt"

// validSSLModes are the SSL modes accepted by libpq-compatible drivers.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration for invalid values. Called by Load
// immediately after unmarshalling so callers fail fast on a bad setup.
func (c *Config) Validate() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d outside 1-65535", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidMaxRetries, c.MaxRetries)
	}
	if c.RetryIntervalSeconds < 0 {
		return fmt.Errorf("%w: must be >= 0, got %g", ErrInvalidRetryInterval, c.RetryIntervalSeconds)
	}

	if c.MirrorEnabled {
		if c.MirrorPath == "" {
			return fmt.Errorf("%w: mirror enabled but no file path configured", ErrMissingMirrorPath)
		}
		if len(c.MirrorTables) == 0 {
			return fmt.Errorf("%w: mirror enabled but no tables configured", ErrMissingMirrorTables)
		}
		if c.MirrorSyncIntervalSeconds < 0 {
			return fmt.Errorf("%w: must be >= 0, got %g", ErrInvalidSyncInterval, c.MirrorSyncIntervalSeconds)
		}
	}

	return nil
}
