package main

import (
	"log"

	cls "github.com/lightspeed-trading/tradebook/classes"
	"github.com/lightspeed-trading/tradebook/common"
)

const alertQueueSize = 64

// launchAlertSender posts trade alerts one at a time in the order they were
// queued, until alerts is closed
func launchAlertSender(alerts <-chan cls.TradeUpdate, send func(cls.TradeUpdate) error) {
	log.Printf("alertSender : launched alert sender. ")

	for upd := range alerts {
		if err := send(upd); err != nil {
			common.LogAndSendAlertF("%s : failed to send trade alert, %v", upd.TradeID, err)
		}
	}
}

// queueAlerts is the trade book's alert func, blocks once the queue is full
func queueAlerts(alerts chan<- cls.TradeUpdate) func(cls.TradeUpdate) {
	return func(upd cls.TradeUpdate) {
		alerts <- upd
	}
}
