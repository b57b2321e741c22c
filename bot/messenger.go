package bot

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/agnosto/casewatch/discord"
	"github.com/agnosto/casewatch/store"
	"github.com/agnosto/casewatch/utils"
)

// Embed colours, one per response type.
const (
	colorBlue     = 3447003
	colorGreen    = 3066993
	colorRed      = 15158332
	colorGold     = 15844367
	colorDarkGold = 12745742
	colorOrange   = 15105570
	colorDarkRed  = 10038562
)

const removalTimeFormat = "15:04:05 Monday 02 January 2006"

// Messenger is the bot's whole Discord output surface. The case methods
// that act on an already-published message tolerate it having been deleted
// out from under the bot.
type Messenger interface {
	PublishCase(ctx context.Context, c *store.Case) (string, error)
	UpdateCase(ctx context.Context, c *store.Case) error
	RetractCase(ctx context.Context, c *store.Case) error
	ShowCase(ctx context.Context, channelID string, c *store.Case) error
	Alert(ctx context.Context, text string) error
	Success(ctx context.Context, channelID, text string) error
	Failure(ctx context.Context, channelID, text string) error
	List(ctx context.Context, channelID, title string, lines []string) error
	Send(ctx context.Context, channelID string, embed discord.Embed) (string, error)
	Edit(ctx context.Context, channelID, messageID string, embed discord.Embed) error
	SendFile(ctx context.Context, channelID, filename string, data []byte) error
}

// discordMessenger renders cases and command responses as Discord embeds.
type discordMessenger struct {
	client       *discord.Client
	logChannel   string
	alertChannel string
	alertRole    string
	ident        string
}

func NewDiscordMessenger(client *discord.Client, logChannel, alertChannel, alertRole, version string) Messenger {
	return &discordMessenger{
		client:       client,
		logChannel:   logChannel,
		alertChannel: alertChannel,
		alertRole:    alertRole,
		ident:        Ident(version),
	}
}

// caseEmbed renders the case in the fixed seven-field layout the log
// channel shows for every removal.
func (m *discordMessenger) caseEmbed(c *store.Case) discord.Embed {
	removedAt := time.Unix(int64(c.RemovedAt), 0).Format(removalTimeFormat)
	return discord.Embed{
		Color: colorBlue,
		Fields: []discord.EmbedField{
			{Name: "Post title", Value: c.Title},
			{Name: "Post author", Value: c.Author},
			{Name: "Post link", Value: utils.JoinURL("https://reddit.com", c.Permalink)},
			{Name: "Moderator", Value: c.Moderator},
			{Name: "Removal time", Value: removedAt},
			{Name: "Reason", Value: c.Reason},
			{Name: "Case #", Value: fmt.Sprintf("%d", c.Number)},
		},
		Footer: &discord.EmbedFooter{Text: m.ident},
	}
}

func (m *discordMessenger) PublishCase(ctx context.Context, c *store.Case) (string, error) {
	msg, err := m.client.SendMessage(ctx, m.logChannel, "", m.caseEmbed(c))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (m *discordMessenger) UpdateCase(ctx context.Context, c *store.Case) error {
	if c.MessageID == "" {
		return nil
	}
	err := m.client.EditMessage(ctx, m.logChannel, c.MessageID, "", m.caseEmbed(c))
	if stderrors.Is(err, discord.ErrMessageGone) {
		return nil
	}
	return err
}

func (m *discordMessenger) RetractCase(ctx context.Context, c *store.Case) error {
	if c.MessageID == "" {
		return nil
	}
	err := m.client.DeleteMessage(ctx, m.logChannel, c.MessageID)
	if stderrors.Is(err, discord.ErrMessageGone) {
		return nil
	}
	return err
}

func (m *discordMessenger) ShowCase(ctx context.Context, channelID string, c *store.Case) error {
	_, err := m.client.SendMessage(ctx, channelID, "", m.caseEmbed(c))
	return err
}

func (m *discordMessenger) Alert(ctx context.Context, text string) error {
	content := fmt.Sprintf("<@&%s> %s", m.alertRole, text)
	_, err := m.client.SendMessage(ctx, m.alertChannel, content)
	return err
}

func (m *discordMessenger) Success(ctx context.Context, channelID, text string) error {
	_, err := m.client.SendMessage(ctx, channelID, "", discord.Embed{
		Color:  colorGreen,
		Fields: []discord.EmbedField{{Name: "Success", Value: text}},
		Footer: &discord.EmbedFooter{Text: m.ident},
	})
	return err
}

func (m *discordMessenger) Failure(ctx context.Context, channelID, text string) error {
	_, err := m.client.SendMessage(ctx, channelID, "", discord.Embed{
		Color:  colorRed,
		Fields: []discord.EmbedField{{Name: "Error", Value: text}},
		Footer: &discord.EmbedFooter{Text: m.ident},
	})
	return err
}

func (m *discordMessenger) List(ctx context.Context, channelID, title string, lines []string) error {
	value := strings.Join(lines, "\n")
	if value == "" {
		value = "\u200b" // Discord rejects empty field values.
	}
	_, err := m.client.SendMessage(ctx, channelID, "", discord.Embed{
		Color:  colorDarkRed,
		Fields: []discord.EmbedField{{Name: title, Value: value}},
		Footer: &discord.EmbedFooter{Text: m.ident},
	})
	return err
}

func (m *discordMessenger) Send(ctx context.Context, channelID string, embed discord.Embed) (string, error) {
	msg, err := m.client.SendMessage(ctx, channelID, "", embed)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (m *discordMessenger) Edit(ctx context.Context, channelID, messageID string, embed discord.Embed) error {
	err := m.client.EditMessage(ctx, channelID, messageID, "", embed)
	if stderrors.Is(err, discord.ErrMessageGone) {
		return nil
	}
	return err
}

func (m *discordMessenger) SendFile(ctx context.Context, channelID, filename string, data []byte) error {
	_, err := m.client.SendFile(ctx, channelID, filename, data)
	return err
}

// noticeEmbed is the single-field status embed used by the updater flow.
func noticeEmbed(name, value string, color int, ident string) discord.Embed {
	return discord.Embed{
		Color:  color,
		Fields: []discord.EmbedField{{Name: name, Value: value}},
		Footer: &discord.EmbedFooter{Text: ident},
	}
}
