package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	cls "github.com/lightspeed-trading/tradebook/classes"
	"github.com/lightspeed-trading/tradebook/common"
	"github.com/lightspeed-trading/tradebook/db"
	"github.com/lightspeed-trading/tradebook/ledger"
	"github.com/shopspring/decimal"
)

// discord caps an embed at 25 fields
const maxEmbedFields = 25

func strOpt(name string, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func choiceOpt(name string, desc string, required bool, choices ...string) *discordgo.ApplicationCommandOption {
	opt := strOpt(name, desc, required)
	for _, c := range choices {
		opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c, Value: c})
	}
	return opt
}

var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "open",
		Description: "Open a stock or option trade",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("symbol", "Ticker, eg NVDA", true),
			choiceOpt("side", "Buy to open or sell to open", true, "BTO", "STO"),
			choiceOpt("type", "What is being traded", true, "stock", "call", "put"),
			strOpt("price", "Fill price per share or contract", true),
			strOpt("size", "Shares or contracts", true),
			strOpt("strike", "Option strike, eg 118", false),
			strOpt("expiration", "Option expiration, eg 2025-01-17 or 01/17/2025", false),
			strOpt("note", "Shown on the alert", false),
		},
	},
	{
		Name:        "add",
		Description: "Add to an open trade",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("trade_id", "Trade ID", true),
			strOpt("price", "Fill price", true),
			strOpt("size", "Shares or contracts added", true),
		},
	},
	{
		Name:        "trim",
		Description: "Sell part of an open trade",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("trade_id", "Trade ID", true),
			strOpt("price", "Fill price", true),
			strOpt("size", "Shares or contracts sold", true),
		},
	},
	{
		Name:        "close",
		Description: "Close the rest of a trade",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("trade_id", "Trade ID", true),
			strOpt("price", "Fill price", true),
		},
	},
	{
		Name:        "os_open",
		Description: "Open a multi-leg options strategy at a net price",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("name", "eg SPY 550/555 call vertical", true),
			choiceOpt("side", "Paid (debit) or received (credit)", true, "debit", "credit"),
			strOpt("net_price", "Net price per unit, always positive", true),
			strOpt("size", "Units of the strategy", true),
			strOpt("legs", "Comma separated legs, eg 550C, -555C", false),
			strOpt("note", "Shown on the alert", false),
		},
	},
	{
		Name:        "os_add",
		Description: "Add to an open strategy",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("trade_id", "Trade ID", true),
			strOpt("net_price", "Net price per unit", true),
			strOpt("size", "Units added", true),
		},
	},
	{
		Name:        "os_trim",
		Description: "Exit part of an open strategy",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("trade_id", "Trade ID", true),
			strOpt("net_price", "Net price per unit", true),
			strOpt("size", "Units exited", true),
		},
	},
	{
		Name:        "os_close",
		Description: "Close the rest of a strategy",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("trade_id", "Trade ID", true),
			strOpt("net_price", "Net price per unit", true),
		},
	},
	{
		Name:        "trades",
		Description: "List trades",
		Options: []*discordgo.ApplicationCommandOption{
			choiceOpt("status", "Defaults to open", false, "open", "closed", "all"),
		},
	},
	{
		Name:        "mark",
		Description: "Unrealized PnL of an open trade",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("trade_id", "Trade ID", true),
			strOpt("price", "Mark price, the last trade is used if empty", false),
		},
	},
}

// the parts of *discordgo.Session an interaction reply goes through
type interactionResponder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func onInteractionCreated(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	tb *tradeBook,
) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	handleCommand(context.Background(), s, i.Interaction, tb)
}

// discord drops replies that take longer than 3 seconds, so acknowledge
// first and edit the result in once the command (and any quote) is done
func handleCommand(ctx context.Context, s interactionResponder, i *discordgo.Interaction, tb *tradeBook) {
	data := i.ApplicationCommandData()
	opts := optionStrings(data.Options)
	by := interactionUser(i)
	log.Printf("%s : received /%s from %s, %v", LSBOT, data.Name, by, opts)

	err := s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Printf("%s : failed to acknowledge /%s, %v", LSBOT, data.Name, err)
		return
	}

	embed, cmdErr := runCommand(ctx, tb, data.Name, opts, by)
	if cmdErr != nil {
		log.Printf("%s : /%s from %s failed, %v", LSBOT, data.Name, by, cmdErr)

		// errors stay private, swap the public placeholder for an ephemeral followup
		if err := s.InteractionResponseDelete(i); err != nil {
			log.Printf("%s : failed to delete placeholder, %v", LSBOT, err)
		}
		_, err = s.FollowupMessageCreate(i, true, &discordgo.WebhookParams{
			Content: describeTradeErr(cmdErr),
			Flags:   discordgo.MessageFlagsEphemeral,
		})
		if err != nil {
			log.Printf("%s : failed to send error followup, %v", LSBOT, err)
		}
		return
	}

	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := s.InteractionResponseEdit(i, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		log.Printf("%s : failed to edit in /%s result, %v", LSBOT, data.Name, err)
	}
}

// dispatch a slash command. opts are the raw string options by name.
func runCommand(ctx context.Context, tb *tradeBook, name string, opts map[string]string, by string) (*discordgo.MessageEmbed, error) {
	var upd cls.TradeUpdate
	var err error

	switch name {
	case "open":
		req, perr := parseOpenTradeReq(opts, by)
		if perr != nil {
			return nil, perr
		}
		_, upd, err = tb.OpenTrade(ctx, req)

	case "os_open":
		req, perr := parseOpenStrategyReq(opts, by)
		if perr != nil {
			return nil, perr
		}
		_, upd, err = tb.OpenStrategy(ctx, req)

	case "add", "trim", "os_add", "os_trim":
		priceKey := "price"
		if strings.HasPrefix(name, "os_") {
			priceKey = "net_price"
		}
		price, perr := parseDecimalOpt(opts, priceKey)
		if perr != nil {
			return nil, perr
		}
		size, perr := parseDecimalOpt(opts, "size")
		if perr != nil {
			return nil, perr
		}

		tradeID := opts["trade_id"]
		switch name {
		case "add":
			_, upd, err = tb.AddToTrade(ctx, tradeID, price, size, by)
		case "trim":
			_, upd, err = tb.TrimTrade(ctx, tradeID, price, size, by)
		case "os_add":
			_, upd, err = tb.AddToStrategy(ctx, tradeID, price, size, by)
		case "os_trim":
			_, upd, err = tb.TrimStrategy(ctx, tradeID, price, size, by)
		}

	case "close", "os_close":
		priceKey := "price"
		if name == "os_close" {
			priceKey = "net_price"
		}
		price, perr := parseDecimalOpt(opts, priceKey)
		if perr != nil {
			return nil, perr
		}

		if name == "close" {
			_, upd, err = tb.CloseTrade(ctx, opts["trade_id"], price, by)
		} else {
			_, upd, err = tb.CloseStrategy(ctx, opts["trade_id"], price, by)
		}

	case "trades":
		return commandTrades(ctx, tb, opts["status"])

	case "mark":
		return commandMark(ctx, tb, opts)

	default:
		return nil, fmt.Errorf("unknown command %s", name)
	}

	if err != nil {
		return nil, err
	}
	return tradeUpdateEmbed(upd), nil
}

func commandTrades(ctx context.Context, tb *tradeBook, statusStr string) (*discordgo.MessageEmbed, error) {
	var status db.TradeStatus
	switch statusStr {
	case "", "open":
		status = db.TradeOpen
	case "all":
		status = ""
	default:
		parsed, err := db.ParseTradeStatus(statusStr)
		if err != nil {
			return nil, err
		}
		status = parsed
	}

	trades, err := tb.ListTrades(ctx, status)
	if err != nil {
		return nil, err
	}

	title := "All Trades"
	if status != "" {
		title = strings.ToUpper(string(status)[:1]) + string(status)[1:] + " Trades"
	}
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("%d trades", len(trades)),
		Color:       common.DiscordAlertColourAlert,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	for i, tr := range trades {
		if i == maxEmbedFields {
			embed.Description += fmt.Sprintf(", showing the latest %d", maxEmbedFields)
			break
		}
		value := fmt.Sprintf("%s %s @ %s", tr.Side, cls.FmtDecimal(tr.CurrentSize), cls.FmtDecimal(tr.AverageCost))
		if tr.Status == db.TradeClosed {
			value = fmt.Sprintf("%s closed, PnL $%s", tr.Side, tr.RealizedPnL.StringFixed(2))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s | %s", tr.TradeID, tr.DisplayName()),
			Value:  value,
			Inline: false,
		})
	}
	return embed, nil
}

func commandMark(ctx context.Context, tb *tradeBook, opts map[string]string) (*discordgo.MessageEmbed, error) {
	var mark decimal.NullDecimal
	if opts["price"] != "" {
		price, err := parseDecimalOpt(opts, "price")
		if err != nil {
			return nil, err
		}
		mark = decimal.NewNullDecimal(price)
	}

	m, err := tb.MarkTrade(ctx, opts["trade_id"], mark)
	if err != nil {
		return nil, err
	}

	colour := common.DiscordAlertColourOpenPosition
	if m.Unrealized.IsLoss() {
		colour = common.DiscordAlertColourClosePosition
	}

	upd := cls.TradeUpdate{Side: m.Trade.Side, Symbol: m.Trade.DisplayName(), Pnl: &m.Unrealized}
	return &discordgo.MessageEmbed{
		Title:       "Unrealized PnL",
		Description: upd.FmtCoin(),
		Color:       colour,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Trade", Value: m.Trade.TradeID, Inline: true},
			{Name: "Mark", Value: fmt.Sprintf("%s (%s)", cls.FmtDecimal(m.Mark), m.Source), Inline: true},
			{Name: "Average Cost", Value: cls.FmtDecimal(m.Trade.AverageCost), Inline: true},
			{Name: "Size", Value: cls.FmtDecimal(m.Trade.CurrentSize), Inline: true},
			{Name: "PnL", Value: upd.FmtPnl(), Inline: true},
		},
	}, nil
}

func tradeUpdateEmbed(upd cls.TradeUpdate) *discordgo.MessageEmbed {
	title, colour := upd.FmtTitleColour()

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: upd.FmtCoin(),
		Color:       colour,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	for _, a := range upd.NotifAttrs() {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: a.Name, Value: a.Value, Inline: true})
	}
	return embed
}

func optionStrings(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	opts := make(map[string]string, len(options))
	for _, o := range options {
		opts[o.Name] = strings.TrimSpace(o.StringValue())
	}
	return opts
}

func interactionUser(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return "unknown"
}

func parseDecimalOpt(opts map[string]string, name string) (decimal.Decimal, error) {
	raw := strings.TrimPrefix(opts[name], "$")
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: %s is required", ledger.ErrInvalidFill, name)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a number", ledger.ErrInvalidFill, name, opts[name])
	}
	return d, nil
}

var expirationLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "01/02/06", "1/2/06"}

func parseExpiration(raw string) (time.Time, error) {
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: expiration %q is not a date", ledger.ErrInvalidFill, raw)
}

func parseOpenTradeReq(opts map[string]string, by string) (OpenTradeReq, error) {
	side, err := ledger.ParseSide(opts["side"])
	if err != nil {
		return OpenTradeReq{}, fmt.Errorf("%w: %v", ledger.ErrInvalidFill, err)
	}
	price, err := parseDecimalOpt(opts, "price")
	if err != nil {
		return OpenTradeReq{}, err
	}
	size, err := parseDecimalOpt(opts, "size")
	if err != nil {
		return OpenTradeReq{}, err
	}

	req := OpenTradeReq{
		Symbol: strings.ToUpper(opts["symbol"]),
		Side:   side,
		Price:  price,
		Size:   size,
		Note:   opts["note"],
		By:     by,
	}

	switch strings.ToLower(opts["type"]) {
	case "stock", "":
		req.Instrument = db.InstrumentStock
		return req, nil
	case "call":
		req.OptionType = "CALL"
	case "put":
		req.OptionType = "PUT"
	default:
		return OpenTradeReq{}, fmt.Errorf("%w: unknown type %q", ledger.ErrInvalidFill, opts["type"])
	}

	req.Instrument = db.InstrumentOption
	strike, err := parseDecimalOpt(opts, "strike")
	if err != nil {
		return OpenTradeReq{}, err
	}
	req.Strike = decimal.NewNullDecimal(strike)

	if opts["expiration"] == "" {
		return OpenTradeReq{}, fmt.Errorf("%w: expiration is required for options", ledger.ErrInvalidFill)
	}
	exp, err := parseExpiration(opts["expiration"])
	if err != nil {
		return OpenTradeReq{}, err
	}
	req.Expiration = &exp

	return req, nil
}

func parseOpenStrategyReq(opts map[string]string, by string) (OpenStrategyReq, error) {
	var side ledger.Side
	switch strings.ToLower(opts["side"]) {
	case "debit":
		side = ledger.Long
	case "credit":
		side = ledger.Short
	default:
		parsed, err := ledger.ParseSide(opts["side"])
		if err != nil {
			return OpenStrategyReq{}, fmt.Errorf("%w: side must be debit or credit", ledger.ErrInvalidFill)
		}
		side = parsed
	}

	netCost, err := parseDecimalOpt(opts, "net_price")
	if err != nil {
		return OpenStrategyReq{}, err
	}
	size, err := parseDecimalOpt(opts, "size")
	if err != nil {
		return OpenStrategyReq{}, err
	}

	legs := []string{}
	for _, leg := range strings.Split(opts["legs"], ",") {
		if leg = strings.TrimSpace(leg); leg != "" {
			legs = append(legs, leg)
		}
	}

	return OpenStrategyReq{
		Name:    opts["name"],
		Side:    side,
		NetCost: netCost,
		Size:    size,
		Legs:    legs,
		Note:    opts["note"],
		By:      by,
	}, nil
}

// turn an error from the trade book into something to show the user.
// unexpected errors are sent to staff.
func describeTradeErr(err error) string {
	switch {
	case errors.Is(err, ledger.ErrOversizedExit):
		return "That's more than the open size of the trade, nothing was recorded."
	case errors.Is(err, ledger.ErrClosedPosition):
		return "That trade is already closed."
	case errors.Is(err, db.ErrNoTrade):
		return "There's no trade with that ID."
	case errors.Is(err, ErrWrongInstrument):
		return "Wrong command for that trade, use the os_ commands for strategies and the plain ones otherwise."
	case errors.Is(err, ErrNoQuote):
		return "Couldn't get a price for that trade, pass one with the price option."
	case errors.Is(err, ledger.ErrInvalidFill):
		return "Nothing was recorded, " + err.Error()
	}

	common.LogAndSendAlertF("%s : unexpected error handling command, %v", LSBOT, err)
	return "Internal server error, staff have been alerted."
}
