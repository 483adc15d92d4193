package storage

import (
	"encoding/json"
	"fmt"
	"guide-chat/domain/event"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const journalPrefix = "evt:"

// Entry is one recorded event. The journal is diagnostic only,
// nothing is ever replayed into the stores.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	Type       event.Type      `json:"type"`
	Origin     event.Origin    `json:"origin"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Payload    json.RawMessage `json:"payload"`
}

type Journal struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenJournalDB opens the journal database, in memory when path is empty.
func OpenJournalDB(path string) (*badger.DB, error) {
	options := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		options = options.WithInMemory(true)
	}
	return badger.Open(options)
}

func NewJournal(db *badger.DB, log *slog.Logger) *Journal {
	return &Journal{db: db, log: log}
}

// Record stores an event under "evt:{type}:{receivedAt_padded}:{uuid}" so a
// prefix scan returns the events of one type in receipt order.
func (j *Journal) Record(e event.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", e.Type, err)
	}
	receivedAt := e.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	entry := Entry{ID: uuid.New(), Type: e.Type, Origin: e.Origin, ReceivedAt: receivedAt.UTC(), Payload: payload}
	bytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%s:%019d:%s", journalPrefix, e.Type, receivedAt.UnixNano(), entry.ID)
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Entries returns up to limit entries of one type, oldest first.
// A limit of zero or less returns all of them.
func (j *Journal) Entries(t event.Type, limit int) ([]Entry, error) {
	var entries []Entry
	prefix := []byte(fmt.Sprintf("%s%s:", journalPrefix, t))
	err := j.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(entries) == limit {
				j.log.Debug(fmt.Sprintf("Maximum of %d entries reached", limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var entry Entry
				if err := json.Unmarshal(value, &entry); err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Counts returns the number of recorded events per type.
func (j *Journal) Counts() (map[event.Type]int, error) {
	counts := make(map[event.Type]int)
	err := j.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(journalPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			for _, t := range event.AllTypes() {
				if hasTypePrefix(it.Item().Key(), t) {
					counts[t]++
					break
				}
			}
		}
		return nil
	})
	return counts, err
}

func hasTypePrefix(key []byte, t event.Type) bool {
	p := journalPrefix + string(t) + ":"
	return len(key) >= len(p) && string(key[:len(p)]) == p
}
