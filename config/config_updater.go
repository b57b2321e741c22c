package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// VerifyConfigOnStartup runs all checks to ensure a valid config file exists and is updated.
// This should be called when the application starts.
func VerifyConfigOnStartup() {
	configPath := GetConfigPath()
	if err := EnsureConfigExists(configPath); err != nil {
		log.Printf("Error ensuring config exists: %v", err)
	}
	if _, err := LoadConfig(configPath); err == nil {
		if err := EnsureConfigUpdated(configPath); err != nil {
			log.Printf("Error updating config: %v", err)
		}
	}
}

// EnsureConfigExists checks if a config file is present. If not, it attempts to create one
// by copying an example, creating a default, or downloading it from the repo.
func EnsureConfigExists(configPath string) error {
	if _, err := os.Stat(filepath.Dir(configPath)); os.IsNotExist(err) {
		err = os.MkdirAll(filepath.Dir(configPath), os.ModePerm)
		if err != nil {
			return err
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config doesn't exist, check for local example-config.toml
		if _, err := os.Stat("example-config.toml"); err == nil {
			err = copyFile("example-config.toml", configPath)
			if err == nil {
				return nil // Successfully copied example config
			}
			log.Printf("Failed to copy example config: %v. Trying next method.", err)
		}

		// Try to create a default config
		defaultConfig := CreateDefaultConfig()
		err = SaveConfig(defaultConfig)
		if err == nil {
			return nil // Successfully created default config
		}
		log.Printf("Failed to create default config: %v. Trying next method.", err)

		// Last resort: try to download config from GitHub
		err = downloadFile("https://raw.githubusercontent.com/agnosto/casewatch/main/example-config.toml", configPath)
		if err != nil {
			return fmt.Errorf("all methods to create a config failed. Last error: %v", err)
		}
	}
	return nil
}

// EnsureConfigUpdated checks if the config file has all the latest fields and
// backfills defaults for the ones a pre-existing file is missing.
func EnsureConfigUpdated(configPath string) error {
	var rawConfig map[string]any
	_, err := toml.DecodeFile(configPath, &rawConfig)
	if err != nil {
		return err
	}

	var cfg Config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		return err
	}

	defaults := CreateDefaultConfig()
	changed := false

	options, _ := rawConfig["options"].(map[string]any)
	if options == nil {
		options = map[string]any{}
	}
	if _, ok := options["poll_interval"]; !ok {
		cfg.Options.PollInterval = defaults.Options.PollInterval
		changed = true
	}
	if _, ok := options["repeat_offender_threshold"]; !ok {
		cfg.Options.RepeatOffenderThreshold = defaults.Options.RepeatOffenderThreshold
		changed = true
	}

	discord, _ := rawConfig["discord"].(map[string]any)
	if discord == nil {
		discord = map[string]any{}
	}
	if _, ok := discord["command_prefix"]; !ok {
		cfg.Discord.CommandPrefix = defaults.Discord.CommandPrefix
		changed = true
	}

	if _, ok := rawConfig["notifications"]; !ok {
		cfg.Notifications = defaults.Notifications
		changed = true
	}

	if !changed {
		return nil
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(&cfg)
}
