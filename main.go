package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	cls "github.com/lightspeed-trading/tradebook/classes"
	"github.com/lightspeed-trading/tradebook/common"
	"github.com/lightspeed-trading/tradebook/db"
	"github.com/lightspeed-trading/tradebook/marketdata"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
)

var ENVPATH = "inputs/settings.env"

var TESTING bool
var ADMIN_ROLE_ID string
var GUILD_ID string   // empty registers slash commands globally
var LOCAL_PORT string // eg "8080", not ":8080"

var requiredSettings = []string{
	"TESTING", "DB_NAME", "DB_USER", "DB_PASS", "DB_HOST",
	"DISCORD_TOKEN", "ADMIN_ROLE_ID", "TRADE_ALERTS_WH_URL",
	"STAFF_DISC_WH_URL", "EXPORTED_TRADES_DISCORD_CHANNEL_ID",
	"POLYGON_API_KEY", "ADMIN_API_KEY", "JWT_SECRET", "LOCAL_PORT",
}

func main() {
	// set up logger
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	logger := &lumberjack.Logger{ // change file at 200MB, and delete after 7 days
		Filename:   "log.log",
		MaxSize:    200,        // in MB
		MaxBackups: 9999999999, // set very large to effectively disable the max simultaneous number of logfiles
		MaxAge:     7,          // days
	}

	wrt := io.MultiWriter(os.Stdout, logger)
	log.SetOutput(wrt)
	defer logger.Close()

	log.Printf("launching…")

	creds, err := loadSettings(ENVPATH)
	if err != nil {
		log.Fatalf("failed to load settings, %v", err)
	}
	log.Printf("in testing mode: %t", TESTING)

	// get database connection pool
	pool, err := db.GetConnPool(creds["DB_NAME"], creds["DB_USER"], creds["DB_PASS"], creds["DB_HOST"], TESTING)
	if err != nil {
		log.Fatalf("failed to get conn pool, %v", err)
	}
	defer pool.Close()

	if err := db.CreateTables(context.Background(), pool); err != nil {
		log.Fatalf("failed to create tables, %v", err)
	}

	var store db.Store = db.NewPostgresStore(pool)
	if url := creds["REDIS_URL"]; url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			log.Fatalf("failed to parse REDIS_URL, %v", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("failed to reach redis, %v", err)
		}
		store = db.NewCachedStore(store, rdb, db.DefaultCacheTTL)
		log.Printf("caching trades in redis")
	}

	quotes := marketdata.NewClient(creds["POLYGON_API_KEY"])
	alerts := make(chan cls.TradeUpdate, alertQueueSize)
	go launchAlertSender(alerts, common.SendTradeAlert)
	tb := newTradeBook(store, quotes, queueAlerts(alerts))

	// launch services
	tradesFilenameChan := make(chan string, 4)
	go launchDiscordBot(
		creds["DISCORD_TOKEN"], tb, tradesFilenameChan,
		creds["EXPORTED_TRADES_DISCORD_CHANNEL_ID"],
	)

	go launchTradesExporter(tradesFilenameChan, store)

	// listen to http requests
	v := NewVerifier(creds["JWT_SECRET"])
	server := CreateServer(tb, creds["ADMIN_API_KEY"], v, tradesFilenameChan)

	log.Printf("listening on port %s", LOCAL_PORT)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("err serving http, %v", err)
	}
}

// read the settings env, check it and set the globals that depend on it
func loadSettings(envPath string) (map[string]string, error) {
	creds, err := godotenv.Read(envPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read creds, %v", err)
	}
	if err := checkSettings(creds); err != nil {
		return nil, err
	}

	TESTING, err = strconv.ParseBool(creds["TESTING"])
	if err != nil {
		return nil, fmt.Errorf("non bool creds.TESTING %s, %v", creds["TESTING"], err)
	}
	LOCAL_PORT = creds["LOCAL_PORT"]
	ADMIN_ROLE_ID = creds["ADMIN_ROLE_ID"]
	GUILD_ID = creds["GUILD_ID"]

	common.STAFF_DISC_WH_URL = creds["STAFF_DISC_WH_URL"]
	common.TRADE_ALERTS_WH_URL = creds["TRADE_ALERTS_WH_URL"]
	common.LIGHTSPEED_BOT_PROFILE_PICTURE_URL = creds["LIGHTSPEED_BOT_PROFILE_PICTURE_URL"]

	return creds, nil
}

func checkSettings(creds map[string]string) error {
	for _, key := range requiredSettings {
		value, exists := creds[key]
		if !exists || value == "" {
			return fmt.Errorf("key %s doesn't exist", key)
		}
	}

	for _, key := range []string{"TRADE_ALERTS_WH_URL", "STAFF_DISC_WH_URL"} {
		if !webhookIsOK(creds[key]) {
			return fmt.Errorf("%s is not a discord webhook", key)
		}
	}

	if _, err := strconv.Atoi(creds["LOCAL_PORT"]); err != nil {
		return fmt.Errorf("LOCAL_PORT %q is not a port number", creds["LOCAL_PORT"])
	}
	return nil
}
