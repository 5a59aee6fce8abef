package cliagent

import "time"

// Config contains CLI agent process settings.
type Config struct {
	Binary          string        `env:"AGENT_BINARY"            envDefault:"codex"`
	Args            []string      `env:"AGENT_ARGS"              envDefault:"app-server" envSeparator:" "`
	ClientName      string        `env:"AGENT_CLIENT_NAME"       envDefault:"chatrelay"`
	ClientVersion   string        `env:"AGENT_CLIENT_VERSION"    envDefault:"0.1.0"`
	StderrTailBytes int           `env:"AGENT_STDERR_TAIL_BYTES" envDefault:"4000"`
	KillGrace       time.Duration `env:"AGENT_KILL_GRACE"        envDefault:"2s"`
	ProbeTimeout    time.Duration `env:"AGENT_PROBE_TIMEOUT"     envDefault:"10s"`
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "codex"
		if len(c.Args) == 0 {
			c.Args = []string{"app-server"}
		}
	}
	if c.ClientName == "" {
		c.ClientName = "chatrelay"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "0.1.0"
	}
	if c.StderrTailBytes <= 0 {
		c.StderrTailBytes = 4000
	}
	if c.KillGrace <= 0 {
		c.KillGrace = 2 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	return c
}

func (c Config) client() clientInfo {
	return clientInfo{Name: c.ClientName, Version: c.ClientVersion}
}
