package journal

import "time"

// Config contains run journal settings. The journal is disabled when
// RedisAddr is empty.
type Config struct {
	RedisAddr     string        `env:"JOURNAL_REDIS_ADDR"`
	RedisPassword string        `env:"JOURNAL_REDIS_PASSWORD"`
	RedisDB       int           `env:"JOURNAL_REDIS_DB"       envDefault:"0"`
	KeyPrefix     string        `env:"JOURNAL_KEY_PREFIX"     envDefault:"chatrelay:run"`
	TTL           time.Duration `env:"JOURNAL_TTL"            envDefault:"1h"`
	MaxLen        int64         `env:"JOURNAL_MAX_LEN"        envDefault:"10000"`
	QueueSize     int           `env:"JOURNAL_QUEUE_SIZE"     envDefault:"1024"`
	WriteTimeout  time.Duration `env:"JOURNAL_WRITE_TIMEOUT"  envDefault:"2s"`
}

// Enabled reports whether a Redis address is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.RedisAddr != ""
}
