package notifications

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/you/oobauthsvc/domain"
)

// TelegramServiceImpl implements domain.BotService
type TelegramServiceImpl struct {
	bot      *tgbotapi.BotAPI
	username string
}

// NewTelegramService creates a new Telegram bot service. With an empty bot
// token the service runs in mock mode and logs instead of sending.
func NewTelegramService(botToken, username string) (domain.BotService, error) {
	svc := &TelegramServiceImpl{username: username}
	if botToken == "" {
		return svc, nil
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	svc.bot = bot
	return svc, nil
}

// DeepLink implements domain.BotService
func (t *TelegramServiceImpl) DeepLink(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=AUTH_%s", t.username, token)
}

// Reply implements domain.BotService
func (t *TelegramServiceImpl) Reply(chatID int64, text string) error {
	if t.bot == nil {
		fmt.Printf("[MOCK BOT] To: %d, Message: %s\n", chatID, text)
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send bot reply: %w", err)
	}
	return nil
}
