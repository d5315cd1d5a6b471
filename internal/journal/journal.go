package journal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/lostfound/backend/internal/broker"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

// Entry is one journaled notification.
type Entry struct {
	Notification broker.Notification `json:"notification"`
	RecordedAt   time.Time           `json:"recordedAt"`
}

// Journal is an append-only JSON-lines record of delivered notifications.
// Every append is fsync'd before returning.
type Journal struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
}

func Open(filePath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Journal{filePath: filePath, file: file}, nil
}

func (j *Journal) Name() string { return "journal" }

// Deliver implements broker.Sink.
func (j *Journal) Deliver(_ context.Context, n broker.Notification) error {
	return j.Append(Entry{Notification: n, RecordedAt: time.Now().UTC()})
}

func (j *Journal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if _, err := j.file.Write(append(data, '\n')); err != nil {
		logger.Log.Error("Journal: write failed",
			zap.String("notification_id", entry.Notification.ID.String()),
			zap.Error(err),
		)
		return err
	}

	if err := j.file.Sync(); err != nil {
		logger.Log.Error("Journal: sync failed",
			zap.String("notification_id", entry.Notification.ID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ReadAll returns every entry in append order. Corrupt lines are skipped.
func (j *Journal) ReadAll() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.readAllUnsafe()
}

// Prune rewrites the journal keeping only entries recorded at or after cutoff.
func (j *Journal) Prune(cutoff time.Time) (int, error) {
	start := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()

	all, err := j.readAllUnsafe()
	if err != nil {
		return 0, err
	}

	kept := make([]Entry, 0, len(all))
	for _, e := range all {
		if !e.RecordedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(all) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmpPath := j.filePath + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp journal: %w", err)
	}

	w := bufio.NewWriter(tmp)
	for _, e := range kept {
		data, err := json.Marshal(e)
		if err != nil {
			tmp.Close()
			return 0, err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	tmp.Close()

	if err := j.file.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, j.filePath); err != nil {
		return 0, fmt.Errorf("replace journal: %w", err)
	}

	// Reopen with the same flags so later appends land in the new file
	file, err := os.OpenFile(j.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("reopen journal: %w", err)
	}
	j.file = file

	logger.Log.Info("Journal: pruned",
		zap.Int("removed", removed),
		zap.Int("remaining", len(kept)),
		zap.Duration("duration", time.Since(start)),
	)
	return removed, nil
}

func (j *Journal) readAllUnsafe() ([]Entry, error) {
	file, err := os.Open(j.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	entries := []Entry{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
