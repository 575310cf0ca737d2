package common

import (
	"fmt"
	"log"
	"time"

	cls "github.com/lightspeed-trading/tradebook/classes"
	dwh "github.com/nat-echlin/dwhooks"
)

var LIGHTSPEED_BOT_PROFILE_PICTURE_URL string
var STAFF_DISC_WH_URL string
var TRADE_ALERTS_WH_URL string

// post a trade update to the trade alerts webhook. Will log its own success.
func SendTradeAlert(upd cls.TradeUpdate) error {
	if TRADE_ALERTS_WH_URL == "" {
		return fmt.Errorf("cannot send trade alert to an empty TRADE_ALERTS_WH_URL")
	}

	title, colour := upd.FmtTitleColour()

	emb := dwh.NewEmbed()
	emb.SetTitle(title)
	emb.SetDescription(upd.FmtCoin())
	emb.SetColour(colour)
	emb.SetTimestamp(time.Now().Unix())

	for _, a := range upd.NotifAttrs() {
		emb.AddField(a.Name, a.Value, true)
	}

	// add pfp, username
	msg := dwh.NewMessage("")
	msg.SetUsername("LightSpeed Trades")
	msg.SetAvatarURL(LIGHTSPEED_BOT_PROFILE_PICTURE_URL)
	msg.AddEmbed(emb)

	status, err := dwh.NewWebhook(TRADE_ALERTS_WH_URL).Send(msg)
	if err != nil || (status < 200 || status > 299) {
		return fmt.Errorf("status: %d, err: %v", status, err)
	}

	log.Printf("%s : sent %s alert for %s", upd.TradeID, upd.Type, upd.Symbol)
	return nil
}

// send an alert to the staff alerts webhook
func SendStaffAlert(
	desc string,
) error {
	if STAFF_DISC_WH_URL == "" {
		return fmt.Errorf("no staff webhook set")
	}
	msg := dwh.NewMessage(desc)

	wh := dwh.NewWebhook(STAFF_DISC_WH_URL)
	status, err := wh.Send(msg)

	if err != nil {
		return fmt.Errorf("failed to send to webhook, %v", err)
	}
	expectedStatus := 204
	if status != expectedStatus {
		return fmt.Errorf("bad status; expected: %d, got: %d", expectedStatus, status)
	}
	return nil
}

// log to stdout, and send as a staff alert. internally launched as a goroutine
func LogAndSendAlertF(str string, v ...any) {
	go func() {
		msg := fmt.Sprintf("STAFF-ALERT : "+str, v...)
		log.Print(msg)

		SendStaffAlert(msg)
	}()
}

// For discord bot alerts use the following colours
const (
	DiscordAlertColourOpenPosition   = 65280    // #00FF00 (green)
	DiscordAlertColourClosePosition  = 16711680 // #FF0000 (red)
	DiscordAlertColourAddToPosition  = 16776960 // #FFFF00 (yellow)
	DiscordAlertColourReducePosition = 16753920 // #FFA500 (orange)
	DiscordAlertColourError          = 8388608  // #800000 (dark red)
	DiscordAlertColourAlert          = 255      // #0000FF (blue)
)
