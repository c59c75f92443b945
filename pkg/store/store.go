// Package store keeps the persistent command history.
//
// The history lives in a bbolt database. Commands are keyed by their sequence
// number, so that iterating a bucket visits them in the order they were
// added.
package store

import (
	"errors"
	"fmt"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"
	"src.jobu.sh/pkg/logutil"
)

var logger = logutil.GetLogger("[store] ")

const (
	bucketCmd     = "cmd"
	bucketCmdTime = "cmdtime"
	bucketMeta    = "meta"
)

// ErrNoMatchingCmd is the error returned when a command query completes with
// no result.
var ErrNoMatchingCmd = errors.New("no matching command line")

// Cmd is an entry in the command history.
type Cmd struct {
	Text string
	Seq  int
	// Zero when unknown, such as for imported entries without a timestamp.
	Time time.Time
}

// Store is the persistent command history.
type Store interface {
	NextCmdSeq() (int, error)
	AddCmd(text string) (int, error)
	Cmd(seq int) (string, error)
	CmdsWithSeq(from, upto int) ([]Cmd, error)
	PrevCmds(prefix string, n int) ([]Cmd, error)
	ImportBashHistory(name string, r io.Reader) (int, error)
	Close() error
}

type dbStore struct {
	db *bolt.DB
}

// Functions run in the same transaction when a database is opened, creating
// its buckets.
var initDB = map[string](func(*bolt.Tx) error){}

func init() {
	initDB["initialize command history"] = func(tx *bolt.Tx) error {
		for _, name := range []string{bucketCmd, bucketCmdTime, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewStore opens the database at dbname, creating it if needed. Only one
// process can have the database open at a time; NewStore gives up after a
// second.
func NewStore(dbname string) (Store, error) {
	db, err := bolt.Open(dbname, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for name, fn := range initDB {
			if err := fn(tx); err != nil {
				return fmt.Errorf("failed to %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Println("opened history database", dbname)
	return &dbStore{db}, nil
}

// Close closes the database.
func (s *dbStore) Close() error {
	return s.db.Close()
}
