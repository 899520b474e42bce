package service

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"pinbar_scanner/internal/models"
)

// Telegram — одно текстовое сообщение на пачку сигналов.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegram проверяет токен через getMe. Пустой токен или chat id — синк без бота,
// Notify вернёт ErrNotConfigured.
func NewTelegram(token string, chatID int64, endpoint string, client *http.Client) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return &Telegram{}, nil
	}
	if endpoint == "" {
		endpoint = tgbot.APIEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	b, err := tgbot.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, errors.Wrap(err, "telegram: init bot")
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Notify(_ context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	if t == nil || t.bot == nil || t.chatID == 0 {
		return errors.Wrap(ErrNotConfigured, "telegram token or chat id is empty")
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, telegramText(signals))); err != nil {
		return errors.Wrap(err, "telegram: send")
	}
	return nil
}

func telegramText(signals []models.Signal) string {
	var b strings.Builder
	if len(signals) == 1 {
		fmt.Fprintf(&b, "%s %s\n", emoji(signals[0].Direction), title(signals))
	} else {
		fmt.Fprintf(&b, "📊 %s\n", title(signals))
	}
	for _, s := range signals {
		fmt.Fprintf(&b, "\n%s %s %s\n", emoji(s.Direction), s.Symbol, s.Direction)
		fmt.Fprintf(&b, "• Price: %s\n", strconv.FormatFloat(s.ReferencePrice, 'f', -1, 64))
		fmt.Fprintf(&b, "• Volume ratio: %s\n", s.VolumeRatio.StringFixed(2))
		fmt.Fprintf(&b, "• %s / %s / %s\n", orDash(string(s.ContractType)), orDash(s.Underlying), orDash(s.Interval.String()))
	}
	fmt.Fprintf(&b, "\n🕒 %s", signalTime(signals))
	return b.String()
}
