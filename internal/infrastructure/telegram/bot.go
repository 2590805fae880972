package telegram

import (
	"context"
	"fmt"
	"strings"

	gobot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"spot-engine/internal/domain"
)

// Controller is the engine surface exposed to chat commands.
type Controller interface {
	Status(ctx context.Context) domain.EngineStatus
	Pause()
	Resume()
}

type sender interface {
	Send(c gobot.Chattable) (gobot.Message, error)
}

// Bot pushes engine events to one chat and answers /status, /pause and
// /resume from that chat only.
type Bot struct {
	api    *gobot.BotAPI
	send   sender
	chatID int64
}

var _ domain.Notifier = (*Bot)(nil)

// NewBot connects with token. An empty token returns a nil Bot and no error.
func NewBot(token string, chatID int64) (*Bot, error) {
	if token == "" {
		log.Warn().Msg("TG token empty: bot disabled")
		return nil, nil
	}
	api, err := gobot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	api.Debug = false
	log.Info().Str("@", api.Self.UserName).Msg("Telegram connected")
	return &Bot{api: api, send: api, chatID: chatID}, nil
}

// Notify sends the event as a plain-text message.
func (b *Bot) Notify(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gobot.NewMessage(b.chatID, FormatEvent(event))
	if _, err := b.send.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Run polls for commands until ctx is done.
func (b *Bot) Run(ctx context.Context, ctrl Controller) error {
	u := gobot.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return nil
		case up := <-updates:
			if up.Message == nil {
				continue
			}
			if up.Message.Chat.ID != b.chatID {
				log.Warn().Int64("chat", up.Message.Chat.ID).Msg("ignoring command from unknown chat")
				continue
			}
			b.reply(handle(ctx, ctrl, up.Message.Text))
		}
	}
}

func handle(ctx context.Context, ctrl Controller, text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "/status"):
		return FormatStatus(ctrl.Status(ctx))
	case strings.HasPrefix(text, "/pause"):
		ctrl.Pause()
		return "Entries paused. Open positions are still managed."
	case strings.HasPrefix(text, "/resume"):
		ctrl.Resume()
		return "Entries resumed."
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
		return "Commands: /status, /pause, /resume"
	}
	return "Unknown command. Try /status"
}

func (b *Bot) reply(text string) {
	msg := gobot.NewMessage(b.chatID, text)
	if _, err := b.send.Send(msg); err != nil {
		log.Error().Err(err).Msg("send tg msg")
	}
}

// FormatEvent renders an event as title line plus body.
func FormatEvent(e domain.Event) string {
	var sb strings.Builder
	sb.WriteString(e.Title)
	if e.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Body)
	}
	return sb.String()
}

// FormatStatus renders the engine status for chat.
func FormatStatus(s domain.EngineStatus) string {
	var sb strings.Builder
	state := "running"
	switch {
	case !s.Running:
		state = "stopped"
	case s.Paused:
		state = "paused"
	}
	fmt.Fprintf(&sb, "Mode: %s (%s)\n", s.Mode, state)
	if s.Breaker != domain.BreakerNone {
		fmt.Fprintf(&sb, "Breaker: %s\n", s.Breaker)
	}
	fmt.Fprintf(&sb, "Balance: %.2f | Daily P/L: %.2f\n", s.Risk.CurrentBalance, s.Risk.DailyPnl)
	fmt.Fprintf(&sb, "Today: %d trades, win rate %.1f%%\n", s.Daily.TotalTrades, s.Daily.WinRate)
	fmt.Fprintf(&sb, "Positions: %d", len(s.Positions))
	for _, p := range s.Positions {
		fmt.Fprintf(&sb, "\n- %s %s @ %.6f (SL %.6f, TP %.6f)", p.Symbol, p.Side, p.EntryPrice, p.StopLoss, p.TakeProfit)
	}
	return sb.String()
}
