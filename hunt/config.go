package hunt

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls the agent pool and per-agent pacing. YAML loading goes
// through fileConfig; see LoadConfigFile.
type Config struct {
	// AgentCount is how many agents a search runs. Default: 12.
	AgentCount int

	// MaxPages bounds result pagination per agent. Default: 50.
	MaxPages int

	// QueryPrefix is prepended to the target identifier when building the
	// search query. Default: "MacBook".
	QueryPrefix string

	// RequestDelayMin/Max bound the randomized pause between listings.
	// Defaults: 1s / 3s.
	RequestDelayMin time.Duration
	RequestDelayMax time.Duration

	// PageDelayMin/Max bound the randomized pause between result pages.
	// Defaults: 2s / 4s.
	PageDelayMin time.Duration
	PageDelayMax time.Duration

	// PausePoll is how often a paused agent re-checks its state. Default: 1s.
	PausePoll time.Duration

	// DefaultTargets and DefaultExclusions seed searches started without
	// explicit parameters.
	DefaultTargets    []string
	DefaultExclusions []string
}

func (c *Config) defaults() {
	if c.AgentCount <= 0 {
		c.AgentCount = 12
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.QueryPrefix == "" {
		c.QueryPrefix = "MacBook"
	}
	if c.RequestDelayMin <= 0 {
		c.RequestDelayMin = time.Second
	}
	if c.RequestDelayMax < c.RequestDelayMin {
		c.RequestDelayMax = 3 * time.Second
	}
	if c.PageDelayMin <= 0 {
		c.PageDelayMin = 2 * time.Second
	}
	if c.PageDelayMax < c.PageDelayMin {
		c.PageDelayMax = 4 * time.Second
	}
	if c.PausePoll <= 0 {
		c.PausePoll = time.Second
	}
	if len(c.DefaultTargets) == 0 {
		c.DefaultTargets = []string{"A1706", "A1707", "A1932"}
	}
	if len(c.DefaultExclusions) == 0 {
		c.DefaultExclusions = []string{
			"broken screen", "bad battery", "cracked", "not working", "damaged screen",
		}
	}
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	var c Config
	c.defaults()
	return c
}

// fileConfig is the YAML shape of Config. Durations are strings in
// time.ParseDuration syntax ("1s", "500ms").
type fileConfig struct {
	AgentCount        int      `yaml:"agent_count"`
	MaxPages          int      `yaml:"max_pages"`
	QueryPrefix       string   `yaml:"query_prefix"`
	RequestDelayMin   string   `yaml:"request_delay_min"`
	RequestDelayMax   string   `yaml:"request_delay_max"`
	PageDelayMin      string   `yaml:"page_delay_min"`
	PageDelayMax      string   `yaml:"page_delay_max"`
	PausePoll         string   `yaml:"pause_poll"`
	DefaultTargets    []string `yaml:"default_targets"`
	DefaultExclusions []string `yaml:"default_exclusions"`
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hunt: read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("hunt: parse config %s: %w", path, err)
	}

	cfg := Config{
		AgentCount:        fc.AgentCount,
		MaxPages:          fc.MaxPages,
		QueryPrefix:       fc.QueryPrefix,
		DefaultTargets:    fc.DefaultTargets,
		DefaultExclusions: fc.DefaultExclusions,
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{fc.RequestDelayMin, &cfg.RequestDelayMin},
		{fc.RequestDelayMax, &cfg.RequestDelayMax},
		{fc.PageDelayMin, &cfg.PageDelayMin},
		{fc.PageDelayMax, &cfg.PageDelayMax},
		{fc.PausePoll, &cfg.PausePoll},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("hunt: parse config %s: %w", path, err)
		}
		*d.dst = v
	}
	cfg.defaults()
	return &cfg, nil
}
