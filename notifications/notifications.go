package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/agnosto/casewatch/config"
	"github.com/gen2brain/beeep"
)

// Service mirrors in-server alerts to the operator's own channels: a
// desktop notification and/or a Telegram message, each gated by config.
type Service struct {
	config config.NotificationsConfig
	logger *log.Logger
}

func NewService(cfg config.NotificationsConfig, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "notifications: ", log.LstdFlags)
	}
	return &Service{
		config: cfg,
		logger: logger,
	}
}

// RepeatOffender fires when a user crosses the removal threshold.
func (ns *Service) RepeatOffender(username string, count int) {
	if !ns.config.Enabled {
		return
	}

	message := fmt.Sprintf("/u/%s has made %d removed posts.", username, count)

	if ns.config.SystemNotify {
		ns.sendSystemNotification("Casewatch Repeat Offender", message)
	}

	if ns.config.TelegramBotToken != "" && ns.config.TelegramChatID != "" {
		ns.sendTelegramNotification(message)
	}
}

func (ns *Service) sendSystemNotification(title, message string) {
	if err := beeep.Notify(title, message, ""); err != nil {
		ns.logger.Printf("Failed to send system notification: %v", err)
	}
}

func (ns *Service) sendTelegramNotification(message string) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", ns.config.TelegramBotToken)
	type TelegramPayload struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	payload := TelegramPayload{
		ChatID:    ns.config.TelegramChatID,
		Text:      message,
		ParseMode: "HTML",
	}
	jsonPayload, _ := json.Marshal(payload)

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonPayload))
	if err != nil {
		ns.logger.Printf("Failed to send Telegram notification: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		ns.logger.Printf("Telegram API returned status: %d", resp.StatusCode)
	}
}
