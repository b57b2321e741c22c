package config

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Reddit        RedditConfig        `toml:"reddit"`
	Discord       DiscordConfig       `toml:"discord"`
	Options       OptionsConfig       `toml:"options"`
	Notifications NotificationsConfig `toml:"notifications"`
}

type RedditConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	UserAgent    string `toml:"user_agent"`
	Subreddit    string `toml:"subreddit"`
}

type DiscordConfig struct {
	Token         string `toml:"token"`
	LogChannel    string `toml:"log_channel"`
	AlertChannel  string `toml:"alert_channel"`
	AlertRole     string `toml:"alert_role"`
	CommandPrefix string `toml:"command_prefix"`
}

type OptionsConfig struct {
	DataLocation            string `toml:"data_location"`
	PollInterval            int    `toml:"poll_interval"` // seconds
	RepeatOffenderThreshold int    `toml:"repeat_offender_threshold"`
	CheckUpdates            bool   `toml:"check_updates"`
}

type NotificationsConfig struct {
	Enabled          bool   `toml:"enabled"`
	SystemNotify     bool   `toml:"system_notify"`
	TelegramBotToken string `toml:"telegram_bot_token"`
	TelegramChatID   string `toml:"telegram_chat_id"`
}

func GetConfigPath() string {
	currentDirConfig := "config.toml"
	if _, err := os.Stat(currentDirConfig); err == nil {
		return currentDirConfig
	}

	return filepath.Join(GetConfigDir(), "config.toml")
}

func GetConfigDir() string {
	var configDir string
	var err error

	if runtime.GOOS == "darwin" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatal(err)
		}
		configDir = filepath.Join(homeDir, ".config")
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			log.Fatal(err)
		}
	}

	return filepath.Join(configDir, "casewatch")
}

func SaveConfig(cfg *Config) error {
	configPath := GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), os.ModePerm); err != nil {
		return err
	}
	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(cfg)
}

func LoadConfig(configPath string) (*Config, error) {
	var config Config
	_, err := toml.DecodeFile(configPath, &config)
	if err != nil {
		return nil, err
	}

	if err := ValidateConfig(&config, configPath); err != nil {
		return nil, err
	}

	config.Options.DataLocation = filepath.ToSlash(config.Options.DataLocation)

	if config.Options.PollInterval <= 0 {
		config.Options.PollInterval = 30
	}
	if config.Options.RepeatOffenderThreshold <= 0 {
		config.Options.RepeatOffenderThreshold = 3
	}
	if config.Discord.CommandPrefix == "" {
		config.Discord.CommandPrefix = "t:"
	}

	return &config, nil
}

// ValidateConfig checks the fields the bot cannot run without.
func ValidateConfig(cfg *Config, configPath string) error {
	if cfg.Reddit.ClientID == "" || cfg.Reddit.ClientSecret == "" {
		return fmt.Errorf("reddit client_id/client_secret are empty in %v", configPath)
	}
	if cfg.Reddit.Username == "" || cfg.Reddit.Password == "" {
		return fmt.Errorf("reddit username/password are empty in %v", configPath)
	}
	if cfg.Reddit.UserAgent == "" {
		return fmt.Errorf("reddit user_agent is empty in %v", configPath)
	}
	if cfg.Reddit.Subreddit == "" {
		return fmt.Errorf("subreddit is empty in %v", configPath)
	}
	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord token is empty in %v", configPath)
	}
	if cfg.Discord.LogChannel == "" {
		return fmt.Errorf("discord log_channel is empty in %v", configPath)
	}
	if cfg.Options.DataLocation == "" {
		return fmt.Errorf("data_location is empty in %v", configPath)
	}
	return nil
}

func CreateDefaultConfig() *Config {
	return &Config{
		Reddit: RedditConfig{
			UserAgent: "casewatch (by /u/your-bot-account)",
		},
		Discord: DiscordConfig{
			CommandPrefix: "t:",
		},
		Options: OptionsConfig{
			DataLocation:            "/path/to/keep/state/in",
			PollInterval:            30,
			RepeatOffenderThreshold: 3,
			CheckUpdates:            false,
		},
		Notifications: NotificationsConfig{
			Enabled:      false,
			SystemNotify: false,
		},
	}
}

func copyFile(srcPath string, dstPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

func downloadFile(url string, filePath string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}
