package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reviewradar.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "./rrdata", cfg.Sync.DataDir)
	assert.Equal(t, 5*time.Minute, cfg.Sync.CommitInterval)
	assert.Equal(t, 10*time.Second, cfg.Sync.NoteInterval)
	assert.Equal(t, 6, cfg.Sync.BranchEvery)
	assert.False(t, cfg.Notify.Enabled)
	assert.Equal(t, "18:00", cfg.Notify.At)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9999

[sync]
commit_interval = "2m"

[[projects]]
id = "42"
name = "example"
gitlab_url = "https://gitlab.example.com/"
access_token = "tok"
reviewers = ["alice", "bob"]
filter_rules = "^docs:.*"

[[projects]]
id = "43"
gitlab_url = "https://gitlab.example.com"
access_token = "tok"
active = false
review_days = 14
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Sync.CommitInterval)
	require.Len(t, cfg.Projects, 2)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Projects[0].Reviewers)

	projects := cfg.ProjectModels()
	require.Len(t, projects, 2)

	// Trailing slash stripped, defaults filled.
	assert.Equal(t, "https://gitlab.example.com", projects[0].GitLabURL)
	assert.True(t, projects[0].Active)
	assert.Equal(t, 7, projects[0].ReviewDays)
	assert.Equal(t, 100, projects[0].MaxCommits)

	assert.False(t, projects[1].Active)
	assert.Equal(t, 14, projects[1].ReviewDays)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("REVIEWRADAR_SERVER_PORT", "7000")
	t.Setenv("REVIEWRADAR_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig(writeConfig(t, `
[[projects]]
id = "42"
gitlab_url = "https://gitlab.example.com"
access_token = "tok"
`))
		require.NoError(t, err)
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, Validate(valid()))
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = -1
		assert.Error(t, Validate(cfg))
	})

	t.Run("missing data dir", func(t *testing.T) {
		cfg := valid()
		cfg.Sync.DataDir = ""
		assert.Error(t, Validate(cfg))
	})

	t.Run("duplicate project id", func(t *testing.T) {
		cfg := valid()
		cfg.Projects = append(cfg.Projects, cfg.Projects[0])
		assert.Error(t, Validate(cfg))
	})

	t.Run("missing access token", func(t *testing.T) {
		cfg := valid()
		cfg.Projects[0].AccessToken = ""
		assert.Error(t, Validate(cfg))
	})

	t.Run("bad notify time", func(t *testing.T) {
		cfg := valid()
		cfg.Notify.Enabled = true
		cfg.Notify.At = "25:99"
		assert.Error(t, Validate(cfg))
	})
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewradar.toml")

	require.NoError(t, InitConfig(path))

	// The sample must load and validate cleanly.
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	require.Len(t, cfg.Projects, 1)
	assert.Equal(t, "42", cfg.Projects[0].ID)

	// Refuses to clobber an existing file.
	assert.Error(t, InitConfig(path))
}
