package store

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// HistoryEntry is a command parsed from a bash history file.
type HistoryEntry struct {
	Text string
	// Zero if the file has no timestamp for the entry.
	Time time.Time
}

// ParseBashHistory parses a bash history file. A line consisting of "#"
// followed by a unix time is the timestamp of the next command; any other
// line starting with "#" is a command. Blank lines are skipped.
func ParseBashHistory(r io.Reader) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	var ts time.Time
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if t, ok := parseTimestamp(line); ok {
			ts = t
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, HistoryEntry{line, ts})
		ts = time.Time{}
	}
	return entries, scanner.Err()
}

func parseTimestamp(line string) (time.Time, bool) {
	s, ok := strings.CutPrefix(line, "#")
	if !ok {
		return time.Time{}, false
	}
	sec, err := strconv.ParseUint(strings.TrimSpace(s), 10, 63)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(int64(sec), 0), true
}

// ImportBashHistory adds the commands of a bash history file to the history,
// in the order they appear. Each source is imported only once; importing it
// again adds nothing. It returns the number of commands added.
func (s *dbStore) ImportBashHistory(source string, r io.Reader) (int, error) {
	marker := []byte("imported:" + source)
	var imported bool
	s.db.View(func(tx *bolt.Tx) error {
		imported = tx.Bucket([]byte(bucketMeta)).Get(marker) != nil
		return nil
	})
	if imported {
		return 0, nil
	}
	entries, err := ParseBashHistory(r)
	if err != nil {
		return 0, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get(marker) != nil {
			entries = nil
			return nil
		}
		for _, entry := range entries {
			if _, err := addCmd(tx, entry.Text, entry.Time); err != nil {
				return err
			}
		}
		return meta.Put(marker, []byte(strconv.FormatInt(time.Now().Unix(), 10)))
	})
	if err != nil {
		return 0, err
	}
	logger.Printf("imported %d commands from %s", len(entries), source)
	return len(entries), nil
}
