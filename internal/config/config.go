package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livetemplate/thebekit"
	"github.com/livetemplate/thebekit/internal/security"
)

// Config represents the thebekit configuration
type Config struct {
	Title    string         `yaml:"title"`
	Server   ServerConfig   `yaml:"server"`
	Thebe    ThebeConfig    `yaml:"thebe"`
	Features FeaturesConfig `yaml:"features"`
	Limits   LimitsConfig   `yaml:"limits"`
	Cache    CacheConfig    `yaml:"cache"`
	Ignore   []string       `yaml:"ignore"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// ThebeConfig controls how pages are wired to the widget.
type ThebeConfig struct {
	KernelName    string          `yaml:"kernel_name"`    // e.g. "python3", "ir"
	Selectors     SelectorsConfig `yaml:"selectors"`
	LaunchMessage string          `yaml:"launch_message"` // prefix shown before the status label
	RetryInterval string          `yaml:"retry_interval"` // e.g. "500ms"
	LibraryURL    string          `yaml:"library_url"`    // script URL of the widget library
	Binder        BinderConfig    `yaml:"binder"`
}

// SelectorsConfig holds the CSS selectors locating code cells.
type SelectorsConfig struct {
	Cell   string `yaml:"cell"`
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// BinderConfig points the widget at the Binder service providing kernels.
type BinderConfig struct {
	Repo string `yaml:"repo"` // e.g. "binder-examples/requirements"
	Ref  string `yaml:"ref"`
	URL  string `yaml:"url"` // Binder deployment, default mybinder.org
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	HotReload bool `yaml:"hot_reload"`
	Metrics   bool `yaml:"metrics"` // expose /metrics
}

// LimitsConfig holds rate limits for the websocket endpoint
type LimitsConfig struct {
	WSRequestsPerSecond float64 `yaml:"ws_rps"`
	WSBurst             int     `yaml:"ws_burst"`
}

// CacheConfig configures the rendered page cache
type CacheConfig struct {
	TTL string `yaml:"ttl"` // e.g. "5m"; empty disables caching
}

// GetRetryInterval returns the widget load retry interval (default: 500ms)
func (c ThebeConfig) GetRetryInterval() time.Duration {
	if c.RetryInterval == "" {
		return thebekit.DefaultRetryInterval
	}
	d, err := time.ParseDuration(c.RetryInterval)
	if err != nil || d <= 0 {
		return thebekit.DefaultRetryInterval
	}
	return d
}

// GetLibraryURL returns the widget library URL
func (c ThebeConfig) GetLibraryURL() string {
	if c.LibraryURL == "" {
		return "https://unpkg.com/thebelab@latest/lib/index.js"
	}
	return c.LibraryURL
}

// GetRef returns the Binder ref (default: "master")
func (c BinderConfig) GetRef() string {
	if c.Ref == "" {
		return "master"
	}
	return c.Ref
}

// GetURL returns the Binder deployment URL (default: https://mybinder.org)
func (c BinderConfig) GetURL() string {
	if c.URL == "" {
		return "https://mybinder.org"
	}
	return c.URL
}

// GetTTL returns the page cache TTL (0 disables caching)
func (c CacheConfig) GetTTL() time.Duration {
	if c.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// GetWSRate returns the websocket connection rate per IP (default: 5/s)
func (c LimitsConfig) GetWSRate() float64 {
	if c.WSRequestsPerSecond <= 0 {
		return 5
	}
	return c.WSRequestsPerSecond
}

// GetWSBurst returns the websocket connection burst per IP (default: 10)
func (c LimitsConfig) GetWSBurst() int {
	if c.WSBurst <= 0 {
		return 10
	}
	return c.WSBurst
}

// ActivationOptions builds controller options. kernel overrides the configured
// kernel name when non-empty (page frontmatter).
func (c *Config) ActivationOptions(kernel string) thebekit.Options {
	opts := thebekit.DefaultOptions()
	if c.Thebe.Selectors.Cell != "" {
		opts.Selectors.Cell = c.Thebe.Selectors.Cell
	}
	if c.Thebe.Selectors.Input != "" {
		opts.Selectors.Input = c.Thebe.Selectors.Input
	}
	if c.Thebe.Selectors.Output != "" {
		opts.Selectors.Output = c.Thebe.Selectors.Output
	}
	if c.Thebe.KernelName != "" {
		opts.KernelName = c.Thebe.KernelName
	}
	if kernel != "" {
		opts.KernelName = kernel
	}
	if c.Thebe.LaunchMessage != "" {
		opts.LaunchMessage = c.Thebe.LaunchMessage
	}
	opts.RetryInterval = c.Thebe.GetRetryInterval()
	opts.Debug = c.Server.Debug
	return opts
}

// Validate checks the configuration for selector and server errors.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.ActivationOptions("").Validate(); err != nil {
		return fmt.Errorf("thebe config: %w", err)
	}
	if err := security.ValidateScriptURL(c.Thebe.GetLibraryURL()); err != nil {
		return fmt.Errorf("thebe library_url: %w", err)
	}
	if err := security.ValidateHTTPURL(c.Thebe.Binder.GetURL()); err != nil {
		return fmt.Errorf("thebe binder url: %w", err)
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "Interactive Documentation",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Thebe: ThebeConfig{
			KernelName: thebekit.DefaultKernelName,
			Selectors: SelectorsConfig{
				Cell:   thebekit.DefaultCellSelector,
				Input:  thebekit.DefaultInputSelector,
				Output: thebekit.DefaultOutputSelector,
			},
			LaunchMessage: thebekit.DefaultLaunchMessage,
			RetryInterval: "500ms",
		},
		Features: FeaturesConfig{
			HotReload: true,
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
		Ignore: []string{
			"drafts/**",
			"_*.md",
		},
	}
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// LoadFromDir looks for thebekit.yaml, then thebekit.yml, in the given directory.
// If neither is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"thebekit.yaml", "thebekit.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
