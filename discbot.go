package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lightspeed-trading/tradebook/common"
)

var LSBOT string = "LSBOT_DISC"

// long running function, start with a go routine
func launchDiscordBot(
	botToken string,
	tb *tradeBook,
	fnameChan <-chan string,
	tradesDiscordChannelID string,
) {
	defer func() {
		if err := recover(); err != nil {
			alert := fmt.Sprintf("discord bot crashed, restarting\n\n%v", err)
			common.SendStaffAlert(alert)

			launchDiscordBot(botToken, tb, fnameChan, tradesDiscordChannelID)
		}
	}()

	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		log.Fatalf("%s : failed to create session, %v", LSBOT, err)
	}

	// add handlers
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		onMessageCreated(s, m, tb)
	})
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		onInteractionCreated(s, i, tb)
	})

	// launch bot
	session.Identify.Intents = discordgo.IntentsAll

	err = session.Open()
	if err != nil {
		log.Fatalf("%s : failed to open session, %v", LSBOT, err)
	}
	defer session.Close()

	// register slash commands, to one guild if set (instant) or globally
	_, err = session.ApplicationCommandBulkOverwrite(session.State.User.ID, GUILD_ID, slashCommands)
	if err != nil {
		log.Fatalf("%s : failed to register slash commands, %v", LSBOT, err)
	}
	log.Printf("%s : registered %d slash commands", LSBOT, len(slashCommands))

	go listenForTradesFiles(session, fnameChan, tradesDiscordChannelID)

	log.Printf("%s : %s is now online", LSBOT, session.State.User.Username)
	for {
		time.Sleep(999999999999)
	}
}

func listenForTradesFiles(
	s *discordgo.Session,
	fnameChan <-chan string,
	tradesDiscordChannelID string,
) {
	log.Printf("%s : listening for trade files to send…", LSBOT)

	for filename := range fnameChan {
		err := sendTradesFile(s, filename, tradesDiscordChannelID)
		if err != nil {
			common.LogAndSendAlertF(err.Error())
			continue
		}
		log.Printf("%s : success sending %s to trades discord channel", LSBOT, filename)
	}
}

func sendTradesFile(s *discordgo.Session, filename string, channelID string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf(
			"%s : failed to open trades file %s, %v",
			LSBOT, filename, err,
		)
	}
	defer file.Close()

	_, err = s.ChannelFileSend(channelID, filename, file)
	if err != nil {
		return fmt.Errorf(
			"%s : failed to send trades file to discord, %v",
			LSBOT, err,
		)
	}
	return nil
}

func onMessageCreated(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
	tb *tradeBook,
) {
	if m.Author.ID == s.State.User.ID {
		return // skip if message is sent by the bot
	}

	if strings.HasPrefix(m.Content, "!export") && isAdmin(m.Member) {
		commandExport(s, m, tb)
	}
}

// !export [days]
func commandExport(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
	tb *tradeBook,
) {
	log.Printf("%s : received !export request from %s", LSBOT, m.Author.Username)

	sendErr := func() {
		s.ChannelMessageSend(
			m.ChannelID,
			"Structure: !export *days*, eg !export 30 (defaults to 7)",
		)
	}

	days := 7
	parts := strings.Fields(m.Content)
	if len(parts) > 2 {
		sendErr()
		return
	}
	if len(parts) == 2 {
		n, err := parsePositiveInt(parts[1])
		if err != nil {
			sendErr()
			return
		}
		days = n
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	filename, err := prepForExport(context.Background(), tb.store, since)
	if err != nil {
		common.LogAndSendAlertF("%s : failed to export trades, %v", LSBOT, err)
		s.ChannelMessageSend(m.ChannelID, "Internal server error (exporting trades)")
		return
	}

	if err := sendTradesFile(s, filename, m.ChannelID); err != nil {
		common.LogAndSendAlertF(err.Error())
		return
	}
	log.Printf("%s : sent %s", LSBOT, filename)
}

// check if a user has the admin role
func isAdmin(member *discordgo.Member) bool {
	if member == nil {
		return false
	}

	for _, roleID := range member.Roles {
		if roleID == ADMIN_ROLE_ID {
			return true
		}
	}
	return false
}
