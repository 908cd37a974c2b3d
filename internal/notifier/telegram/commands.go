package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotController handles Telegram commands that trigger and inspect runs
type BotController struct {
	bot     *tgbotapi.BotAPI
	sender  sender
	chatID  int64
	enabled bool

	// Callbacks
	onBook          func(dryRun bool) bool
	onStatusRequest func() string
	onHistory       func() string
}

// NewBotController creates a new bot controller with command handling
func NewBotController(botToken string, chatID int64, enabled bool) (*BotController, error) {
	if !enabled || botToken == "" {
		return &BotController{enabled: false}, nil
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &BotController{
		bot:     bot,
		sender:  bot,
		chatID:  chatID,
		enabled: true,
	}, nil
}

// SetCallbacks wires the controller to the run trigger. onBook reports
// whether a run was started; it returns false while one is in progress.
func (c *BotController) SetCallbacks(onBook func(dryRun bool) bool, onStatus, onHistory func() string) {
	c.onBook = onBook
	c.onStatusRequest = onStatus
	c.onHistory = onHistory
}

// StartCommandListener starts listening for Telegram commands
func (c *BotController) StartCommandListener(ctx context.Context) {
	if !c.enabled {
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := c.bot.GetUpdatesChan(u)

	go func() {
		defer c.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case update := <-updates:
				if update.Message == nil || !update.Message.IsCommand() {
					continue
				}

				// Only respond to authorized chat
				if update.Message.Chat.ID != c.chatID {
					continue
				}

				c.handleCommand(update.Message.Command())
			}
		}
	}()
}

func (c *BotController) handleCommand(command string) {
	reply := tgbotapi.NewMessage(c.chatID, c.respond(command))
	reply.ParseMode = tgbotapi.ModeHTML
	c.sender.Send(reply)
}

func (c *BotController) respond(command string) string {
	switch command {
	case "start", "help":
		return c.helpMessage()
	case "book", "dryrun":
		if c.onBook == nil {
			return "Réservation indisponible."
		}
		dryRun := command == "dryrun"
		if !c.onBook(dryRun) {
			return "⏳ <b>Réservation déjà en cours</b>\n\nRéessayez après la fin de la tentative actuelle."
		}
		if dryRun {
			return "🧪 <b>Test lancé</b>\n\nLe créneau sera annulé avant paiement."
		}
		return "🎾 <b>Réservation lancée</b>"
	case "status":
		return c.statusMessage()
	case "history":
		if c.onHistory != nil {
			return c.onHistory()
		}
		return "Historique indisponible."
	}
	return "Commande inconnue. Utilisez /help."
}

func (c *BotController) helpMessage() string {
	return `🎾 <b>TennisBot</b>

/book - Réserver maintenant
/dryrun - Tester sans réserver
/status - État actuel
/history - Dernières tentatives
/help - Cette aide`
}

func (c *BotController) statusMessage() string {
	status := "🎾 <b>TennisBot Status</b>"
	if c.onStatusRequest != nil {
		status += "\n\n" + c.onStatusRequest()
	}
	return status
}

// GetChatID returns the configured chat ID
func (c *BotController) GetChatID() int64 {
	return c.chatID
}

// IsEnabled returns whether the controller is enabled
func (c *BotController) IsEnabled() bool {
	return c.enabled
}
