package notify

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/order"
)

// TelegramSender is satisfied by *tgbotapi.BotAPI.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// KitchenNotifier posts paid orders to the kitchen chat.
type KitchenNotifier struct {
	Bot    TelegramSender
	ChatID int64
}

// NewKitchenNotifier connects to the Telegram bot API.
func NewKitchenNotifier(token string, chatID int64) (*KitchenNotifier, error) {
	if strings.TrimSpace(token) == "" || chatID == 0 {
		return nil, errors.New("notify: telegram token and chat id are required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &KitchenNotifier{Bot: bot, ChatID: chatID}, nil
}

// Send posts the ticket for o.
func (k *KitchenNotifier) Send(o order.Order) error {
	if k == nil || k.Bot == nil {
		return errors.New("notify: kitchen notifier not configured")
	}
	msg := tgbotapi.NewMessage(k.ChatID, KitchenTicket(o))
	msg.DisableWebPagePreview = true
	if _, err := k.Bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// KitchenTicket formats the plain-text ticket the kitchen receives.
func KitchenTicket(o order.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New order #%s\n", shortID(o.ID.String()))
	fmt.Fprintf(&b, "Customer: %s\n", truncate(o.Customer.Name, 50))
	if o.Customer.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", o.Customer.Phone)
	}
	b.WriteString("\n")
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%dx %s\n", it.Quantity, it.Label)
	}
	fmt.Fprintf(&b, "\nTotal: %s%s", currencySymbol(o.Currency), catalog.MajorString(o.Total))
	return b.String()
}
