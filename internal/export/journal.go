package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/lowaak/cardio-tracker/internal/session"
)

// JournalEntry is one line of the training journal
type JournalEntry struct {
	SessionID      string            `json:"session_id"`
	CompletedAt    time.Time         `json:"completed_at"`
	Activity       calc.ActivityType `json:"activity"`
	Indoor         bool              `json:"indoor"`
	DistanceMeters float64           `json:"distance_m"`
	ElapsedSeconds float64           `json:"elapsed_s"`
	Calories       int               `json:"calories"`
	AveragePace    string            `json:"average_pace"`
	Splits         int               `json:"splits"`
	Feeling        string            `json:"feeling"`
}

// Journal appends a summary line per completed session to a JSON Lines file.
// It stands in for a health platform sync.
type Journal struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

func NewJournal(path string, logger *log.Logger) *Journal {
	if logger == nil {
		panic("Journal: logger cannot be nil")
	}
	return &Journal{path: path, logger: logger}
}

// Sync appends the record to the journal
func (j *Journal) Sync(ctx context.Context, record session.FinalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := JournalEntry{
		SessionID:      record.SessionID,
		CompletedAt:    record.CompletedAt,
		Activity:       record.Metadata.Activity,
		Indoor:         record.Metadata.Indoor,
		DistanceMeters: record.Snapshot.DistanceMeters,
		ElapsedSeconds: record.Snapshot.ElapsedSeconds,
		Calories:       record.Snapshot.Calories,
		AveragePace:    record.Snapshot.AveragePace().Format(record.Units),
		Splits:         len(record.Snapshot.Splits),
		Feeling:        record.Metadata.Feeling.String(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	j.logger.Printf("Journal: recorded %s", record.SessionID)
	return nil
}

// Entries returns every journal entry, oldest first. A missing journal is empty.
func (j *Journal) Entries() ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []JournalEntry{}, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	entries := []JournalEntry{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			j.logger.Printf("Journal: skipping malformed line: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
