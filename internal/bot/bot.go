// Package bot is the Telegram transport. It translates updates into
// dispatcher events and renders responses back as messages with inline
// keyboards. All conversation logic lives in the dispatcher.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/utilibot/utilibot/internal/config"
	"github.com/utilibot/utilibot/internal/dispatcher"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Param struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	Dispatcher *dispatcher.Dispatcher
}

type Bot struct {
	api        *tgbotapi.BotAPI
	dispatcher *dispatcher.Dispatcher
	log        *zap.Logger
}

// New builds the transport. Without a token the bot stays constructible so
// the webhook endpoint and tests can still drive the dispatcher; only long
// polling and outbound sends are disabled.
func New(p Param) (*Bot, error) {
	b := &Bot{
		dispatcher: p.Dispatcher,
		log:        p.Log.Named("bot"),
	}
	if p.Config.TelegramToken == "" {
		b.log.Warn("telegram token not configured, long polling disabled")
		return b, nil
	}

	api, err := tgbotapi.NewBotAPI(p.Config.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.api = api
	b.log.Info("authorized", zap.String("username", api.Self.UserName))
	return b, nil
}

// HandleUpdate dispatches one update and sends the response, if any.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		// Acknowledge first so the client stops its spinner even when
		// the dispatch below is slow.
		if b.api != nil {
			if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
				b.log.Warn("callback ack failed", zap.Error(err))
			}
		}
		b.send(cq.From.ID, b.dispatcher.HandleSelection(ctx, cq.From.ID, cq.Data))

	case update.Message != nil:
		msg := update.Message
		switch {
		case msg.IsCommand():
			args := strings.Fields(msg.CommandArguments())
			b.send(msg.Chat.ID, b.dispatcher.HandleCommand(ctx, msg.Chat.ID, msg.Command(), args))
		case msg.Text != "":
			b.send(msg.Chat.ID, b.dispatcher.HandleText(ctx, msg.Chat.ID, msg.Text))
		}
	}
}

func (b *Bot) send(chatID int64, resp dispatcher.Response) {
	if b.api == nil || resp.Text == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, resp.Text)
	if len(resp.Options) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(resp.Options))
		for _, opt := range resp.Options {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(opt.Label, opt.Data),
			))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) poll(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.log.Info("long polling started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

func run(lc fx.Lifecycle, b *Bot) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if b.api == nil {
				close(done)
				return nil
			}
			go func() {
				defer close(done)
				b.poll(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

var Module = fx.Module("bot",
	fx.Provide(New),
	fx.Invoke(run),
)
