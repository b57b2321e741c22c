package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
[reddit]
client_id = "id"
client_secret = "secret"
username = "bot"
password = "pw"
user_agent = "casewatch test"
subreddit = "testing"

[discord]
token = "tok"
log_channel = "111"
alert_channel = "222"
alert_role = "333"

[options]
data_location = "/tmp/casewatch"
`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Options.PollInterval)
	assert.Equal(t, 3, cfg.Options.RepeatOffenderThreshold)
	assert.Equal(t, "t:", cfg.Discord.CommandPrefix)
	assert.Equal(t, "testing", cfg.Reddit.Subreddit)
}

func TestLoadConfigKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, validConfig+`
poll_interval = 60
repeat_offender_threshold = 5
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Options.PollInterval)
	assert.Equal(t, 5, cfg.Options.RepeatOffenderThreshold)
}

func TestLoadConfigRejectsMissingFields(t *testing.T) {
	path := writeConfig(t, `
[reddit]
client_id = "id"
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	cfg := CreateDefaultConfig()
	err := ValidateConfig(cfg, "config.toml")
	require.Error(t, err, "defaults alone are not runnable")

	cfg.Reddit.ClientID = "id"
	cfg.Reddit.ClientSecret = "secret"
	cfg.Reddit.Username = "bot"
	cfg.Reddit.Password = "pw"
	cfg.Reddit.Subreddit = "testing"
	cfg.Discord.Token = "tok"
	cfg.Discord.LogChannel = "111"
	require.NoError(t, ValidateConfig(cfg, "config.toml"))
}

func TestEnsureConfigUpdatedBackfills(t *testing.T) {
	path := writeConfig(t, validConfig)

	require.NoError(t, EnsureConfigUpdated(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Options.PollInterval)
	assert.Equal(t, "t:", cfg.Discord.CommandPrefix)
	assert.False(t, cfg.Notifications.Enabled)

	// The backfilled fields are now literally present in the file.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll_interval")
	assert.Contains(t, string(data), "command_prefix")
	assert.Contains(t, string(data), "[notifications]")
}
