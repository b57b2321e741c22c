package ui

import (
	"path/filepath"

	"github.com/agnosto/casewatch/config"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	wizardRedditClientID = iota
	wizardRedditClientSecret
	wizardRedditUsername
	wizardRedditPassword
	wizardSubreddit
	wizardDiscordToken
	wizardLogChannel
	wizardAlertChannel
	wizardAlertRole
	wizardDataLocation
	wizardFieldCount
)

var wizardTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a6e3a1")).PaddingBottom(1)

type ConfigWizardModel struct {
	inputs  [wizardFieldCount]textinput.Model
	cursor  int
	message string
}

func NewConfigWizardModel() *ConfigWizardModel {
	m := &ConfigWizardModel{}

	placeholders := [wizardFieldCount]string{
		wizardRedditClientID:     "Reddit app client id",
		wizardRedditClientSecret: "Reddit app client secret",
		wizardRedditUsername:     "Reddit bot account username",
		wizardRedditPassword:     "Reddit bot account password",
		wizardSubreddit:          "Subreddit to watch (without r/)",
		wizardDiscordToken:       "Discord bot token",
		wizardLogChannel:         "Discord log channel id",
		wizardAlertChannel:       "Discord alert channel id",
		wizardAlertRole:          "Discord alert role id",
		wizardDataLocation:       "Data location (folder)",
	}

	for i := range m.inputs {
		m.inputs[i] = textinput.New()
		m.inputs[i].Placeholder = placeholders[i]
	}
	m.inputs[wizardRedditClientSecret].EchoMode = textinput.EchoPassword
	m.inputs[wizardRedditClientSecret].EchoCharacter = '•'
	m.inputs[wizardRedditPassword].EchoMode = textinput.EchoPassword
	m.inputs[wizardRedditPassword].EchoCharacter = '•'
	m.inputs[wizardDiscordToken].EchoMode = textinput.EchoPassword
	m.inputs[wizardDiscordToken].EchoCharacter = '•'
	m.inputs[wizardRedditClientID].Focus()
	return m
}

func (m *ConfigWizardModel) Init() tea.Cmd { return textinput.Blink }

func (m *ConfigWizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.message = "Setup cancelled."
			return m, tea.Quit
		case "enter":
			if m.cursor < len(m.inputs)-1 {
				m.cursor++
				m.focusCursor()
				return m, nil
			}
			cfg := config.CreateDefaultConfig()
			cfg.Reddit.ClientID = m.inputs[wizardRedditClientID].Value()
			cfg.Reddit.ClientSecret = m.inputs[wizardRedditClientSecret].Value()
			cfg.Reddit.Username = m.inputs[wizardRedditUsername].Value()
			cfg.Reddit.Password = m.inputs[wizardRedditPassword].Value()
			cfg.Reddit.Subreddit = m.inputs[wizardSubreddit].Value()
			cfg.Discord.Token = m.inputs[wizardDiscordToken].Value()
			cfg.Discord.LogChannel = m.inputs[wizardLogChannel].Value()
			cfg.Discord.AlertChannel = m.inputs[wizardAlertChannel].Value()
			cfg.Discord.AlertRole = m.inputs[wizardAlertRole].Value()
			cfg.Options.DataLocation = filepath.Clean(m.inputs[wizardDataLocation].Value())
			if err := config.ValidateConfig(cfg, config.GetConfigPath()); err != nil {
				m.message = err.Error()
				return m, nil
			}
			if err := config.SaveConfig(cfg); err != nil {
				m.message = err.Error()
				return m, nil
			}
			return m, tea.Quit
		case "tab":
			m.cursor = (m.cursor + 1) % len(m.inputs)
			m.focusCursor()
		case "shift+tab":
			m.cursor = (m.cursor + len(m.inputs) - 1) % len(m.inputs)
			m.focusCursor()
		}
	}

	for i := range m.inputs {
		m.inputs[i], _ = m.inputs[i].Update(msg)
	}
	return m, nil
}

func (m *ConfigWizardModel) focusCursor() {
	for i := range m.inputs {
		if i == m.cursor {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

func (m *ConfigWizardModel) View() string {
	v := wizardTitleStyle.Render("First-time setup: create config.toml") + "\n\n"
	for i := range m.inputs {
		v += m.inputs[i].View() + "\n"
	}
	v += "\n"
	if m.message != "" {
		v += m.message + "\n"
	}
	v += "Press Enter to advance and save, Tab to switch, Esc to quit. Everything else can be edited in config.toml later.\n"
	return v
}
