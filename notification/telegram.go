// Package notification provides implementations for human-facing event sinks.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/logger"
	"github.com/hiroq/fxcore/order"
)

const pollingTimeout = 10 * time.Second

// Telegram implements core.NotifierWithStart against a single authorized chat
type Telegram struct {
	client      *tb.Bot
	chat        int64
	gateway     core.BrokerGateway
	summary     *order.TradeSummary
	defaultMenu *tb.ReplyMarkup
	log         logger.Logger
}

// NewTelegram creates and initializes the Telegram notifier
func NewTelegram(
	token string,
	chat int64,
	gateway core.BrokerGateway,
	summary *order.TradeSummary,
	log logger.Logger,
) (core.NotifierWithStart, error) {
	poller := &tb.LongPoller{Timeout: pollingTimeout}
	authorized := tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("message or sender is nil ", u)
			return false
		}
		if u.Message.Sender.ID == chat {
			return true
		}
		log.Error("unauthorized user ", u.Message.Sender.ID)
		return false
	})

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     token,
		Poller:    authorized,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text("/status"), menu.Text("/balance"), menu.Text("/profit")),
	)

	if err := client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/status", Description: "Check bot status"},
		{Text: "/balance", Description: "Account balance"},
		{Text: "/profit", Description: "Summary of closed trades"},
	}); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	t := &Telegram{
		client:      client,
		chat:        chat,
		gateway:     gateway,
		summary:     summary,
		defaultMenu: menu,
		log:         log,
	}

	client.Handle("/help", t.HelpHandle)
	client.Handle("/status", t.StatusHandle)
	client.Handle("/balance", t.BalanceHandle)
	client.Handle("/profit", t.ProfitHandle)

	return t, nil
}

// Start begins polling and announces the bot to the chat
func (t *Telegram) Start() {
	go t.client.Start()
	t.send("Bot initialized.", t.defaultMenu)
}

// Notify sends a message to the authorized chat
func (t *Telegram) Notify(text string) {
	t.send(text)
}

func (t *Telegram) send(text string, options ...any) {
	if _, err := t.client.Send(&tb.User{ID: t.chat}, text, options...); err != nil {
		t.log.WithError(err).Error("failed to send notification")
	}
}

// HelpHandle displays available commands
func (t *Telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		t.log.WithError(err).Error("failed to get commands")
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}
	t.send(strings.Join(lines, "\n"))
}

// StatusHandle reports gateway health for the instrument
func (t *Telegram) StatusHandle(m *tb.Message) {
	positions, err := t.gateway.OpenPositions(context.Background())
	if err != nil {
		t.OnError(err)
		return
	}
	t.send(fmt.Sprintf("Running. Open positions: `%d`", len(positions)))
}

// BalanceHandle shows the account balance and equity
func (t *Telegram) BalanceHandle(m *tb.Message) {
	account, err := t.gateway.Account(context.Background())
	if err != nil {
		t.log.WithError(err).Error("failed to get account")
		t.OnError(err)
		return
	}

	t.send(fmt.Sprintf(
		"*BALANCE*\nBalance: `%.2f %s`\nUnrealized: `%.2f`\nEquity: `%.2f`",
		account.Balance, account.Currency, account.UnrealizedPL, account.Equity(),
	))
}

// ProfitHandle shows the closed-trade summary
func (t *Telegram) ProfitHandle(m *tb.Message) {
	if t.summary == nil || len(t.summary.Win())+len(t.summary.Lose()) == 0 {
		t.send("No trades registered.")
		return
	}
	t.send(fmt.Sprintf("*%s*\n`%s`", t.summary.Instrument, t.summary.String()))
}

// OnOrder notifies about order submissions and fills
func (t *Telegram) OnOrder(o core.Order) {
	title := t.orderStatusTitle(o)
	body := fmt.Sprintf(
		"%s\n-----\n%s %s %.2f lots @ %s\nTP `%.1f` pips / SL `%.1f` pips\nposition `%s`",
		title, o.Side, o.Type, o.Units,
		core.FormatPrice(o.Instrument, o.Price),
		o.TPPips, o.SLPips, o.PositionID,
	)
	t.Notify(body)
}

func (t *Telegram) orderStatusTitle(o core.Order) string {
	switch o.Status {
	case core.OrderStatusTypeFilled:
		return fmt.Sprintf("✅ ORDER FILLED - %s", o.Instrument)
	case core.OrderStatusTypeNew:
		return fmt.Sprintf("🆕 NEW ORDER - %s", o.Instrument)
	case core.OrderStatusTypeCanceled, core.OrderStatusTypeRejected:
		return fmt.Sprintf("❌ ORDER CANCELED / REJECTED - %s", o.Instrument)
	default:
		return fmt.Sprintf("ORDER UPDATE - %s", o.Instrument)
	}
}

// OnError notifies about pipeline errors
func (t *Telegram) OnError(err error) {
	t.Notify("🛑 ERROR\n-----\n" + err.Error())
}
