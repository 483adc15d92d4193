package main

import (
	"flag"
	"fmt"
	"guide-chat/domain/event"
	"guide-chat/infrastructure/storage"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "", "Path to the journal badger DB")
	kind := flag.String("type", "", "Event type to list, every type when empty")
	limit := flag.Int("limit", 50, "Max entries per type")
	flag.Parse()
	if *dbPath == "" {
		log.Fatal("-db is required")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()
	journal := storage.NewJournal(db, logs.GetLoggerFromString("ERROR"))

	types := event.AllTypes()
	if *kind != "" {
		types = []event.Type{event.Type(*kind)}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Type", "Origin", "Received", "ID", "Payload"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, t := range types {
		entries, err := journal.Entries(t, *limit)
		if err != nil {
			log.Fatal(err)
		}
		for _, entry := range entries {
			// First 8 characters are enough to tell entries apart
			displayID := entry.ID.String()[:8]
			table.Append([]string{
				string(entry.Type),
				string(entry.Origin),
				entry.ReceivedAt.Format("15:04:05.000"),
				displayID,
				string(entry.Payload),
			})
		}
	}
	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A crashed writer leaves a log that must be truncated by a write open first
		if strings.Contains(err.Error(), "Log truncate required") {
			repaired, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil).WithBypassLockGuard(true))
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = repaired.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
