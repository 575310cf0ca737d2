package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lightspeed-trading/tradebook/common"
	"github.com/lightspeed-trading/tradebook/db"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"
)

// exports look back this far when run on the weekly schedule
const exportWindow = 7 * 24 * time.Hour

func launchTradesExporter(
	fnameChan chan<- string,
	store db.Store,
) {
	log.Printf("tradesExporter : launched trades exporter. ")

	for {
		nextRunTime := getNextRunTime()
		durationUntilNextRun := time.Until(nextRunTime)

		timer := time.NewTimer(durationUntilNextRun)
		<-timer.C

		log.Printf("tradesExporter : exporting trades…")

		since := time.Now().UTC().Add(-exportWindow)
		filename, err := prepForExport(context.Background(), store, since)
		if err != nil {
			common.LogAndSendAlertF(
				"tradesExporter : failed to prep trades for export, %v", err,
			)
			continue
		}

		log.Printf("tradesExporter : sending %s to discord bot", filename)
		fnameChan <- filename
	}
}

// create and save a file with a sheet of exits per symbol and a PnLs
// sheet totalling them. The returned string is the filename of where the
// file was saved
func prepForExport(ctx context.Context, store db.Store, since time.Time) (string, error) {
	file := xlsx.NewFile()

	// create a sheet for PnLs
	pnlSheet, err := file.AddSheet("PnLs")
	if err != nil {
		return "", fmt.Errorf("failed to add pnls sheet, %v", err)
	}
	pnlHeaderRow := pnlSheet.AddRow()
	pnlHeaderRow.AddCell().SetString("Symbol")
	pnlHeaderRow.AddCell().SetString("Exits")
	pnlHeaderRow.AddCell().SetString("RealizedPnL")

	exits, err := store.ListExits(ctx, since)
	if err != nil {
		return "", fmt.Errorf("failed to fetch exits, %v", err)
	}

	// realized pnl and exit count per symbol
	pnlMap := make(map[string]decimal.Decimal)
	countMap := make(map[string]int)
	names := newSheetNames(pnlSheet.Name)

	for _, exit := range exits {
		name := names.get(exit.Symbol)

		// check if a sheet for this symbol exists
		sheet, ok := file.Sheet[name]
		if !ok {
			sheet, err = file.AddSheet(name)
			if err != nil {
				return "", fmt.Errorf("failed to add sheet, %v", err)
			}
			// add column headers
			headerRow := sheet.AddRow()
			headerRow.AddCell().SetString("TradeID")
			headerRow.AddCell().SetString("Type")
			headerRow.AddCell().SetString("Side")
			headerRow.AddCell().SetString("Size")
			headerRow.AddCell().SetString("ExitPrice")
			headerRow.AddCell().SetString("PnL")
			headerRow.AddCell().SetString("Timestamp")
		}

		row := sheet.AddRow()
		row.AddCell().SetString(exit.TradeID)
		row.AddCell().SetString(string(exit.TransactionType))
		row.AddCell().SetString(string(exit.Side))
		row.AddCell().SetFloat(exit.Size.InexactFloat64())
		row.AddCell().SetFloat(exit.Amount.InexactFloat64())
		row.AddCell().SetFloat(exit.RealizedPnL.InexactFloat64())
		row.AddCell().SetString(exit.CreatedAt.Format(time.RFC3339))

		pnlMap[exit.Symbol] = pnlMap[exit.Symbol].Add(exit.RealizedPnL)
		countMap[exit.Symbol]++
	}

	// populate PnLs sheet
	symbols := make([]string, 0, len(pnlMap))
	for symbol := range pnlMap {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	total := decimal.Zero
	for _, symbol := range symbols {
		row := pnlSheet.AddRow()
		row.AddCell().SetString(symbol)
		row.AddCell().SetInt(countMap[symbol])
		row.AddCell().SetFloat(pnlMap[symbol].InexactFloat64())
		total = total.Add(pnlMap[symbol])
	}
	totalRow := pnlSheet.AddRow()
	totalRow.AddCell().SetString("TOTAL")
	totalRow.AddCell().SetInt(len(exits))
	totalRow.AddCell().SetFloat(total.InexactFloat64())

	// save the xlsx file
	currentDate := time.Now().UTC().Format("2January") // "2" for day without leading zero, "January" for full month
	filename := "trades_" + currentDate + ".xlsx"
	err = file.Save(filename)
	if err != nil {
		return "", fmt.Errorf("failed to save file: %v", err)
	}

	log.Printf(
		"tradesExporter : successfully exported (%d) exits into %s",
		len(exits), filename,
	)

	return filename, nil
}

const maxSheetNameLen = 31

// excel sheet names are at most 31 chars, can't hold []:*?/\ and must be
// unique ignoring case. sheetNames hands out one per symbol.
type sheetNames struct {
	bySymbol map[string]string
	taken    map[string]bool // lower cased
}

func newSheetNames(reserved ...string) *sheetNames {
	n := &sheetNames{
		bySymbol: make(map[string]string),
		taken:    make(map[string]bool),
	}
	for _, r := range reserved {
		n.taken[strings.ToLower(r)] = true
	}
	return n
}

func (n *sheetNames) get(symbol string) string {
	if name, ok := n.bySymbol[symbol]; ok {
		return name
	}

	base := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, symbol)
	if base == "" {
		base = "Sheet"
	}

	name := truncateRunes(base, maxSheetNameLen)
	for i := 2; n.taken[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf("-%d", i)
		name = truncateRunes(base, maxSheetNameLen-len(suffix)) + suffix
	}

	n.taken[strings.ToLower(name)] = true
	n.bySymbol[symbol] = name
	return name
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// getNextRunTime calculates the next time the exporter should run.
func getNextRunTime() time.Time {
	now := time.Now()

	// find the next Monday - mondays at 8pm is a time we can consistently be around on
	nextRunTime := time.Date(
		now.Year(), now.Month(), now.Day(),
		20, 0, 0, 0, time.UTC,
	)
	for nextRunTime.Weekday() != time.Monday {
		nextRunTime = nextRunTime.Add(24 * time.Hour)
	}

	// if we've already passed the run time for this week, schedule for next week.
	if nextRunTime.Before(now) {
		nextRunTime = nextRunTime.Add(7 * 24 * time.Hour)
	}

	return nextRunTime
}
