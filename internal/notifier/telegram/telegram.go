package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/julianbeese/tennis_bot/internal/domain"
	"github.com/julianbeese/tennis_bot/internal/messenger"
)

// sender is the part of *tgbotapi.BotAPI the notifier needs
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends messages via Telegram
type Notifier struct {
	bot      sender
	chatID   int64
	enabled  bool
	messages *messenger.Generator
}

// NewNotifierFromController creates a notifier using an existing BotController
func NewNotifierFromController(controller *BotController, messages *messenger.Generator) *Notifier {
	if controller == nil || !controller.IsEnabled() {
		return &Notifier{enabled: false}
	}
	return &Notifier{
		bot:      controller.sender,
		chatID:   controller.GetChatID(),
		enabled:  true,
		messages: messages,
	}
}

// NotifyBooking sends the confirmation with the calendar document attached
func (n *Notifier) NotifyBooking(ctx context.Context, conf domain.Confirmation, ics []byte) error {
	if !n.enabled {
		return nil
	}

	text, err := n.messages.Booking(conf)
	if err != nil {
		return fmt.Errorf("render booking: %w", err)
	}

	if len(ics) == 0 {
		return n.SendRawMessage(ctx, text)
	}

	doc := tgbotapi.NewDocument(n.chatID, tgbotapi.FileBytes{Name: "event.ics", Bytes: ics})
	doc.Caption = text
	doc.ParseMode = tgbotapi.ModeHTML

	_, err = n.bot.Send(doc)
	return err
}

// NotifyFailure reports a run that ended without a booking
func (n *Notifier) NotifyFailure(ctx context.Context, result domain.BookingResult) error {
	if !n.enabled {
		return nil
	}

	text, err := n.messages.Failure(result)
	if err != nil {
		return fmt.Errorf("render failure: %w", err)
	}
	return n.SendRawMessage(ctx, text)
}

// NotifyStartup sends a notification that the bot has started
func (n *Notifier) NotifyStartup(ctx context.Context, locations []string, addr string) error {
	if !n.enabled {
		return nil
	}

	text := fmt.Sprintf(
		"🚀 <b>TennisBot gestartet</b>\n\n"+
			"<b>Lieux:</b> %s\n"+
			"<b>Trigger:</b> %s",
		escapeHTML(strings.Join(locations, ", ")),
		escapeHTML(addr),
	)
	return n.SendRawMessage(ctx, text)
}

// escapeHTML escapes HTML special characters for Telegram
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// IsEnabled returns whether the notifier is enabled
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// SendRawMessage sends a raw HTML message
func (n *Notifier) SendRawMessage(ctx context.Context, text string) error {
	if !n.enabled {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	_, err := n.bot.Send(msg)
	return err
}
