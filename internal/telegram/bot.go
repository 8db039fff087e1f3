package telegram

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/chatmirror/internal/channels"
	"github.com/mixelka/chatmirror/internal/config"
	"github.com/mixelka/chatmirror/internal/database"
	"github.com/mixelka/chatmirror/internal/dispatch"
	"github.com/mixelka/chatmirror/internal/formatter"
	"github.com/mixelka/chatmirror/internal/mirror"
	"github.com/mixelka/chatmirror/internal/parser"
)

// Bot represents the Telegram bot
type Bot struct {
	bot        *bot.Bot
	db         *database.DB
	channels   *channels.Registry
	allocator  *channels.Allocator
	dispatcher *dispatch.Dispatcher
	mirror     *mirror.Mirror
	edits      *mirror.EditRecorder
	prober     *mirror.Prober
	replayer   *mirror.Replayer
	htmlParser *parser.HTMLParser
	formatter  *formatter.TelegramFormatter
	logger     *slog.Logger
	config     *config.Config

	// business connection id -> owner account id
	connections sync.Map
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Config     *config.Config
	DB         *database.DB
	Channels   *channels.Registry
	Allocator  *channels.Allocator
	Dispatcher *dispatch.Dispatcher
	HTMLParser *parser.HTMLParser
	Formatter  *formatter.TelegramFormatter
	Logger     *slog.Logger
}

// NewBot creates a new Telegram bot and the mirror core on top of it
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		db:         deps.DB,
		channels:   deps.Channels,
		allocator:  deps.Allocator,
		dispatcher: deps.Dispatcher,
		htmlParser: deps.HTMLParser,
		formatter:  deps.Formatter,
		logger:     deps.Logger.With("component", "telegram_bot"),
		config:     deps.Config,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		// Updates are handed to the dispatcher in delivery order
		bot.WithNotAsyncHandlers(),
		bot.WithAllowedUpdates(bot.AllowedUpdates{
			"message",
			"callback_query",
			"business_connection",
			"business_message",
			"edited_business_message",
			"deleted_business_messages",
		}),
	}

	tgBot, err := bot.New(deps.Config.TelegramToken, opts...)
	if err != nil {
		return nil, err
	}
	b.bot = tgBot

	var billing mirror.Billing
	if deps.Config.SubscriptionRequired {
		billing = deps.DB
	}

	b.mirror = mirror.New(mirror.Deps{
		Store:     deps.DB,
		Accounts:  deps.Allocator,
		Billing:   billing,
		Transport: b,
		Channels:  deps.Channels,
		Logger:    deps.Logger,
	},
		mirror.WithRetryDelay(deps.Config.MirrorRetryDelay),
		mirror.WithLocation(deps.Config.Location()),
	)
	b.edits = mirror.NewEditRecorder(b.mirror)
	b.prober = mirror.NewProber(b.mirror)
	b.replayer = mirror.NewReplayer(b.mirror)

	b.registerHandlers()

	return b, nil
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleStart)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/profile", bot.MatchTypePrefix, b.handleProfile)
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, b.handleCallback)
}

// Start starts the bot and blocks until ctx is done
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot")
	b.bot.Start(ctx)
}

// defaultHandler routes business updates; everything else is ignored
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	switch {
	case update.BusinessConnection != nil:
		b.onBusinessConnection(ctx, update.BusinessConnection)
	case update.BusinessMessage != nil:
		b.onBusinessMessage(ctx, update.BusinessMessage)
	case update.EditedBusinessMessage != nil:
		b.onEditedBusinessMessage(ctx, update.EditedBusinessMessage)
	case update.DeletedBusinessMessages != nil:
		b.onDeletedBusinessMessages(ctx, update.DeletedBusinessMessages)
	case update.Message != nil:
		if update.Message.Text != "" && update.Message.Text[0] == '/' {
			b.logger.Debug("unknown command", "text", update.Message.Text)
		}
	}
}
