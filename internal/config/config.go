// Package config loads and validates the daybrief configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mfriman/daybrief/internal/digest"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Domains    []string         `yaml:"domains"`
	Weather    WeatherConfig    `yaml:"weather"`
	Sports     SportsConfig     `yaml:"sports"`
	Tech       TechConfig       `yaml:"tech"`
	Market     MarketConfig     `yaml:"market"`
	Reasoning  Reasoning        `yaml:"reasoning"`
	Run        RunConfig        `yaml:"run"`
	Retry      RetryConfig      `yaml:"retry"`
	Validation ValidationConfig `yaml:"validation"`
	Output     Output           `yaml:"output"`
	Server     Server           `yaml:"server"`
	Logging    Logging          `yaml:"logging"`
}

type WeatherConfig struct {
	Location  string `yaml:"location"`
	Units     string `yaml:"units"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type SportsConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Teams     []Team `yaml:"teams"`
}

type Team struct {
	Name   string `yaml:"name"`
	League string `yaml:"league"`
}

type TechConfig struct {
	Feeds         []string `yaml:"feeds"`
	Topics        []string `yaml:"topics"`
	MaxStories    int      `yaml:"max_stories"`
	FetchTopStory bool     `yaml:"fetch_top_story"`
}

type MarketConfig struct {
	APIKeyEnv string   `yaml:"api_key_env"`
	Symbols   []string `yaml:"symbols"`
}

type Reasoning struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type RunConfig struct {
	Deadline      Duration `yaml:"deadline"`
	PublishPolicy string   `yaml:"publish_policy"`
}

type RetryConfig struct {
	Fetch  RetryPolicy `yaml:"fetch"`
	Reason RetryPolicy `yaml:"reason"`
}

type RetryPolicy struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialDelay      Duration `yaml:"initial_delay"`
	BackoffBase       float64  `yaml:"backoff_base"`
	PerAttemptTimeout Duration `yaml:"per_attempt_timeout"`
}

type ValidationConfig struct {
	FreshnessWarn     Duration            `yaml:"freshness_warn"`
	FreshnessError    Duration            `yaml:"freshness_error"`
	MinNarrativeChars int                 `yaml:"min_narrative_chars"`
	TrustedSources    map[string][]string `yaml:"trusted_sources"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
	SiteDir string `yaml:"site_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Duration parses YAML strings like "60s" or "1h" via
// time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ConfigDir returns the XDG config directory for daybrief.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "daybrief")
}

// DataDir returns the XDG data directory for daybrief.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "daybrief")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/daybrief/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'daybrief init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses, and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults, and
// rejects inconsistent configurations before any run starts.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Domains: []string{"weather", "sports", "tech", "market"},
		Weather: WeatherConfig{
			Location:  "San Jose,US",
			Units:     "imperial",
			APIKeyEnv: "OPENWEATHER_API_KEY",
		},
		Sports: SportsConfig{
			APIKeyEnv: "SPORTSDB_API_KEY",
			Teams: []Team{
				{Name: "San Jose Sharks", League: "NHL"},
				{Name: "Golden State Warriors", League: "NBA"},
			},
		},
		Tech: TechConfig{
			Feeds: []string{
				"https://techcrunch.com/feed/",
				"https://www.theverge.com/rss/index.xml",
				"https://feeds.arstechnica.com/arstechnica/index",
			},
			Topics:        []string{"ai", "software", "chip", "security"},
			MaxStories:    5,
			FetchTopStory: true,
		},
		Market: MarketConfig{
			APIKeyEnv: "ALPHAVANTAGE_API_KEY",
			Symbols:   []string{"^GSPC", "^IXIC", "^DJI"},
		},
		Reasoning: Reasoning{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   400,
		},
		Run: RunConfig{
			Deadline:      Duration(60 * time.Second),
			PublishPolicy: "no-regress",
		},
		Retry: RetryConfig{
			Fetch: RetryPolicy{
				MaxAttempts:       3,
				InitialDelay:      Duration(time.Second),
				BackoffBase:       2.0,
				PerAttemptTimeout: Duration(10 * time.Second),
			},
			Reason: RetryPolicy{
				MaxAttempts:       2,
				InitialDelay:      Duration(2 * time.Second),
				BackoffBase:       2.0,
				PerAttemptTimeout: Duration(45 * time.Second),
			},
		},
		Validation: ValidationConfig{
			FreshnessWarn:     Duration(time.Hour),
			FreshnessError:    Duration(24 * time.Hour),
			MinNarrativeChars: 50,
			TrustedSources: map[string][]string{
				"weather": {"openweathermap"},
				"sports":  {"thesportsdb"},
				"tech":    {"techcrunch", "theverge", "arstechnica"},
				"market":  {"alphavantage"},
			},
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations no run should start with.
func (c *Config) Validate() error {
	if len(c.Domains) == 0 {
		return fmt.Errorf("no domains configured")
	}
	seen := make(map[string]bool, len(c.Domains))
	for _, name := range c.Domains {
		if _, err := digest.ParseDomain(name); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("duplicate domain %q", name)
		}
		seen[name] = true
	}

	for _, d := range c.Domains {
		switch digest.Domain(d) {
		case digest.DomainWeather:
			if c.Weather.Location == "" {
				return fmt.Errorf("weather domain enabled but no location configured")
			}
		case digest.DomainSports:
			if len(c.Sports.Teams) == 0 {
				return fmt.Errorf("sports domain enabled but no teams configured")
			}
		case digest.DomainTech:
			if len(c.Tech.Feeds) == 0 {
				return fmt.Errorf("tech domain enabled but no feeds configured")
			}
		case digest.DomainMarket:
			if len(c.Market.Symbols) == 0 {
				return fmt.Errorf("market domain enabled but no symbols configured")
			}
		}
	}

	switch c.Reasoning.Provider {
	case "ollama", "openai", "none", "":
	default:
		return fmt.Errorf("unknown reasoning provider %q", c.Reasoning.Provider)
	}

	if c.Run.Deadline <= 0 {
		return fmt.Errorf("run deadline must be positive")
	}
	switch c.Run.PublishPolicy {
	case "no-regress", "always-latest":
	default:
		return fmt.Errorf("unknown publish policy %q", c.Run.PublishPolicy)
	}

	for name, p := range map[string]RetryPolicy{"fetch": c.Retry.Fetch, "reason": c.Retry.Reason} {
		if p.MaxAttempts < 1 {
			return fmt.Errorf("retry.%s.max_attempts must be at least 1", name)
		}
		if p.BackoffBase < 1 {
			return fmt.Errorf("retry.%s.backoff_base must be at least 1", name)
		}
	}

	if c.Validation.FreshnessWarn > c.Validation.FreshnessError {
		return fmt.Errorf("validation.freshness_warn exceeds freshness_error")
	}
	for name := range c.Validation.TrustedSources {
		if _, err := digest.ParseDomain(name); err != nil {
			return fmt.Errorf("validation.trusted_sources: %w", err)
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	return nil
}

// DomainList returns the configured domains in order as typed values.
func (c *Config) DomainList() []digest.Domain {
	out := make([]digest.Domain, 0, len(c.Domains))
	for _, name := range c.Domains {
		if d, err := digest.ParseDomain(name); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// TrustedSources returns the trust map with typed domain keys.
func (c *Config) TrustedSources() map[digest.Domain][]string {
	out := make(map[digest.Domain][]string, len(c.Validation.TrustedSources))
	for name, sources := range c.Validation.TrustedSources {
		if d, err := digest.ParseDomain(name); err == nil {
			out[d] = sources
		}
	}
	return out
}

// GetDataDir returns the effective data directory: the DAYBRIEF_DATA_DIR
// environment variable, the configured directory, or the XDG default.
func (c *Config) GetDataDir() string {
	if env := os.Getenv("DAYBRIEF_DATA_DIR"); env != "" {
		return env
	}
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetSiteDir returns the directory report artifacts are written to. It
// defaults to site/ under the data directory.
func (c *Config) GetSiteDir() string {
	if c.Output.SiteDir != "" {
		return c.Output.SiteDir
	}
	return filepath.Join(c.GetDataDir(), "site")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
