package pagination

import "time"

// Config holds pagination configuration.
type Config struct {
	// PageSize is the number of strings per interactive page.
	PageSize int

	// BatchSize is the number of strings per drain request.
	BatchSize int

	// BatchDelay is the pause between drain batches when another batch follows.
	BatchDelay time.Duration

	// Timeout per page fetch (0 disables the per-page deadline).
	Timeout time.Duration
}

// DefaultConfig returns the defaults used by the hosted tool.
func DefaultConfig() Config {
	return Config{
		PageSize:   50,
		BatchSize:  50,
		BatchDelay: 100 * time.Millisecond,
		Timeout:    30 * time.Second,
	}
}

// withDefaults fills zero or negative fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	return c
}
