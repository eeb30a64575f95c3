package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/reviewradar/pkg/models"
)

// ProjectConfig is one [[projects]] block in the TOML file.
type ProjectConfig struct {
	ID            string            `koanf:"id"`
	Name          string            `koanf:"name"`
	GitLabURL     string            `koanf:"gitlab_url"`
	AccessToken   string            `koanf:"access_token"`
	Branch        string            `koanf:"branch"`
	Reviewers     []string          `koanf:"reviewers"`
	UserMappings  map[string]string `koanf:"user_mappings"`
	FilterRules   string            `koanf:"filter_rules"`
	ReviewDays    int               `koanf:"review_days"`
	MaxCommits    int               `koanf:"max_commits"`
	WebhookSecret string            `koanf:"webhook_secret"`
	Active        *bool             `koanf:"active"`
}

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`

	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`

	Sync struct {
		DataDir        string        `koanf:"data_dir"`
		CommitInterval time.Duration `koanf:"commit_interval"`
		NoteInterval   time.Duration `koanf:"note_interval"`
		RequestTimeout time.Duration `koanf:"request_timeout"`
		// Branch refresh runs every Nth commit tick.
		BranchEvery int `koanf:"branch_every"`
	} `koanf:"sync"`

	Notify struct {
		Enabled bool   `koanf:"enabled"`
		At      string `koanf:"at"` // daily fire time, "HH:MM"
	} `koanf:"notify"`

	Projects []ProjectConfig `koanf:"projects"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":          8787,
		"log.level":            "info",
		"log.pretty":           false,
		"sync.data_dir":        "./rrdata",
		"sync.commit_interval": "5m",
		"sync.note_interval":   "10s",
		"sync.request_timeout": "10s",
		"sync.branch_every":    6,
		"notify.enabled":       false,
		"notify.at":            "18:00",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./rrdata/reviewradar.toml", "./reviewradar.toml", "$HOME/.reviewradar.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix REVIEWRADAR_
	k.Load(env.Provider("REVIEWRADAR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REVIEWRADAR_")), "_", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# ReviewRadar Configuration

[server]
port = 8787

[log]
level = "info"
pretty = true

[sync]
data_dir = "./rrdata"
commit_interval = "5m"
note_interval = "10s"
request_timeout = "10s"

[notify]
enabled = false
at = "18:00"

[[projects]]
id = "42"
name = "example"
gitlab_url = "https://gitlab.example.com"
access_token = "your-gitlab-token"
reviewers = ["alice", "bob"]
review_days = 7
max_commits = 100
filter_rules = """
^docs:.*
^chore\\(deps\\):.*
"""
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", config.Server.Port)
	}
	if config.Sync.DataDir == "" {
		return fmt.Errorf("sync data_dir is required")
	}
	if config.Sync.CommitInterval <= 0 || config.Sync.NoteInterval <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}

	seen := make(map[string]bool, len(config.Projects))
	for i, p := range config.Projects {
		if p.ID == "" {
			return fmt.Errorf("project %d: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("project %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if p.GitLabURL == "" {
			return fmt.Errorf("project %s: gitlab_url is required", p.ID)
		}
		if p.AccessToken == "" {
			return fmt.Errorf("project %s: access_token is required", p.ID)
		}
	}

	if config.Notify.Enabled {
		if _, err := time.Parse("15:04", config.Notify.At); err != nil {
			return fmt.Errorf("notify.at must be HH:MM: %w", err)
		}
	}

	return nil
}

// ProjectModels converts the configured project blocks into domain models.
// Active defaults to true when unset; review window and commit cap get
// their reference defaults when omitted.
func (c *Config) ProjectModels() []models.Project {
	out := make([]models.Project, 0, len(c.Projects))
	for _, p := range c.Projects {
		active := true
		if p.Active != nil {
			active = *p.Active
		}
		reviewDays := p.ReviewDays
		if reviewDays <= 0 {
			reviewDays = 7
		}
		maxCommits := p.MaxCommits
		if maxCommits <= 0 {
			maxCommits = 100
		}
		out = append(out, models.Project{
			ID:            p.ID,
			Name:          p.Name,
			GitLabURL:     strings.TrimRight(p.GitLabURL, "/"),
			AccessToken:   p.AccessToken,
			Branch:        p.Branch,
			Reviewers:     p.Reviewers,
			UserMappings:  p.UserMappings,
			FilterRules:   p.FilterRules,
			ReviewDays:    reviewDays,
			MaxCommits:    maxCommits,
			WebhookSecret: p.WebhookSecret,
			Active:        active,
		})
	}
	return out
}
