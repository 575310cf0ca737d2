package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/lightspeed-trading/tradebook/common"
)

// send any interface that can be marshalled as an http response.
func sendStructToUser(v any, w http.ResponseWriter, code int) {
	// marshall struct as json
	jsonData, err := json.Marshal(v)
	if err != nil {
		log.Printf("err marshalling json, %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// send to user
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonData)

	if code == 500 {
		go common.SendStaffAlert("Sent 500 response to user, check logs.")
	}
}

// check if a webhook is valid
func webhookIsOK(webhook string) bool {
	validPrefixes := []string{
		"https://discord.com/api/webhooks/",
		"https://canary.discord.com/api/webhooks/",
	}

	for _, validPrefix := range validPrefixes {
		if strings.HasPrefix(webhook, validPrefix) {
			return true
		}
	}

	return false
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}
