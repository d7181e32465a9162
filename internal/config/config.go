package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Source      SourceConfig      `yaml:"source"`
	Destination DestinationConfig `yaml:"destination"`
	Mirror      MirrorConfig      `yaml:"mirror,omitempty"`
	Commit      CommitConfig      `yaml:"commit"`
	Retry       RetryConfig       `yaml:"retry,omitempty"`
	Log         LogConfig         `yaml:"log,omitempty"`
	Daemon      *DaemonConfig     `yaml:"daemon,omitempty"`
	History     *HistoryConfig    `yaml:"history,omitempty"`
	Notify      *NotifyConfig     `yaml:"notify,omitempty"`
}

// SourceConfig identifies the repository tree to copy from. The tree is
// read-only: it is fetched once per run and discarded afterwards.
type SourceConfig struct {
	URL  string      `yaml:"url"`
	Ref  string      `yaml:"ref,omitempty"` // branch, tag, or commit SHA
	Path string      `yaml:"path"`          // subdirectory to copy out of the source tree
	Auth *AuthConfig `yaml:"auth,omitempty"`
}

// DestinationConfig identifies the repository tree that receives the overlay.
type DestinationConfig struct {
	URL    string      `yaml:"url"`
	Branch string      `yaml:"branch,omitempty"`
	Path   string      `yaml:"path"` // subdirectory inside the destination tree
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}

// MirrorConfig tunes overlay behavior.
type MirrorConfig struct {
	// Prune deletes destination files under the target subdirectory that the
	// source no longer provides. Off by default: the overlay only ever adds
	// and replaces files.
	Prune bool `yaml:"prune,omitempty"`
}

// CommitConfig carries the fixed commit identity and message for mirror commits.
type CommitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	Message     string `yaml:"message"`
}

// DaemonConfig configures serve mode.
type DaemonConfig struct {
	ListenAddr  string   `yaml:"listen_addr,omitempty"`
	MetricsAddr string   `yaml:"metrics_addr,omitempty"`
	SecretFile  string   `yaml:"secret_file,omitempty"`  // HMAC secret for the trigger endpoint
	Interval    string   `yaml:"interval,omitempty"`     // optional periodic mirror, duration string
	AllowedRefs []string `yaml:"allowed_refs,omitempty"` // push-event refs that trigger a run; empty allows all
}

// HistoryConfig configures the run-history store.
type HistoryConfig struct {
	Path string `yaml:"path"` // sqlite database path, ":memory:" for ephemeral
}

// NotifyConfig configures optional run-completed event publishing.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; missing files are fine.
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded environment variables from .env")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content so tokens and secrets
	// never have to live in the file itself.
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Ref == "" {
		c.Source.Ref = "main"
	}
	if c.Destination.Branch == "" {
		c.Destination.Branch = "main"
	}
	if c.Commit.Message == "" {
		c.Commit.Message = "Mirror upstream changes"
	}
	if c.Retry.Backoff == "" {
		c.Retry.Backoff = string(RetryBackoffLinear)
	}
	if c.Daemon != nil {
		if c.Daemon.ListenAddr == "" {
			c.Daemon.ListenAddr = ":8080"
		}
		if c.Daemon.MetricsAddr == "" {
			c.Daemon.MetricsAddr = ":9090"
		}
	}
	if c.Notify != nil && c.Notify.Subject == "" {
		c.Notify.Subject = "gitmirror.runs"
	}
}

// Validate checks that the configuration describes a runnable mirror job.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}
	if c.Destination.URL == "" {
		return fmt.Errorf("destination.url is required")
	}
	if c.Destination.Path == "" {
		return fmt.Errorf("destination.path is required")
	}
	if c.Commit.AuthorName == "" || c.Commit.AuthorEmail == "" {
		return fmt.Errorf("commit.author_name and commit.author_email are required")
	}
	if c.Notify != nil && c.Notify.Enabled && c.Notify.NATSURL == "" {
		return fmt.Errorf("notify.nats_url is required when notify is enabled")
	}
	return nil
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Source: SourceConfig{
			URL:  "https://github.com/example/upstream.git",
			Ref:  "avews",
			Path: "custom_components/ave_dominaplus",
		},
		Destination: DestinationConfig{
			URL:    "https://github.com/example/distribution.git",
			Branch: "develop",
			Path:   "custom_components/ave_dominaplus",
			Auth: &AuthConfig{
				Type:  AuthTypeToken,
				Token: "${GITMIRROR_TOKEN}",
			},
		},
		Commit: CommitConfig{
			AuthorName:  "Mirror Bot",
			AuthorEmail: "mirror-bot@example.com",
			Message:     "Mirror upstream changes",
		},
		Retry: RetryConfig{
			MaxRetries:   2,
			Backoff:      string(RetryBackoffLinear),
			InitialDelay: "500ms",
			MaxDelay:     "10s",
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
