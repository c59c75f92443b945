package store

import (
	"bytes"
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"
)

// NextCmdSeq returns the next sequence number of the command history.
func (s *dbStore) NextCmdSeq() (int, error) {
	var seq uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCmd))
		seq = b.Sequence() + 1
		return nil
	})
	return int(seq), err
}

// AddCmd adds a new command to the command history, timestamped now.
func (s *dbStore) AddCmd(cmd string) (int, error) {
	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		seq, err = addCmd(tx, cmd, time.Now())
		return err
	})
	return int(seq), err
}

func addCmd(tx *bolt.Tx, cmd string, t time.Time) (uint64, error) {
	b := tx.Bucket([]byte(bucketCmd))
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	if err := b.Put(marshalSeq(seq), []byte(cmd)); err != nil {
		return 0, err
	}
	if t.IsZero() {
		return seq, nil
	}
	return seq, tx.Bucket([]byte(bucketCmdTime)).Put(marshalSeq(seq), marshalSeq(uint64(t.Unix())))
}

// Cmd queries the command history item with the specified sequence number.
func (s *dbStore) Cmd(seq int) (string, error) {
	var cmd string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCmd))
		v := b.Get(marshalSeq(uint64(seq)))
		if v == nil {
			return ErrNoMatchingCmd
		}
		cmd = string(v)
		return nil
	})
	return cmd, err
}

// CmdsWithSeq returns all commands within the specified range.
func (s *dbStore) CmdsWithSeq(from, upto int) ([]Cmd, error) {
	var cmds []Cmd
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCmd))
		times := tx.Bucket([]byte(bucketCmdTime))
		c := b.Cursor()
		for k, v := c.Seek(marshalSeq(uint64(from))); k != nil && unmarshalSeq(k) < uint64(upto); k, v = c.Next() {
			cmds = append(cmds, makeCmd(times, k, v))
		}
		return nil
	})
	return cmds, err
}

// PrevCmds returns at most n commands starting with prefix, newest first.
func (s *dbStore) PrevCmds(prefix string, n int) ([]Cmd, error) {
	var cmds []Cmd
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCmd))
		times := tx.Bucket([]byte(bucketCmdTime))
		c := b.Cursor()
		p := []byte(prefix)
		for k, v := c.Last(); k != nil && len(cmds) < n; k, v = c.Prev() {
			if bytes.HasPrefix(v, p) {
				cmds = append(cmds, makeCmd(times, k, v))
			}
		}
		return nil
	})
	return cmds, err
}

func makeCmd(times *bolt.Bucket, k, v []byte) Cmd {
	cmd := Cmd{Text: string(v), Seq: int(unmarshalSeq(k))}
	if t := times.Get(k); len(t) == 8 {
		cmd.Time = time.Unix(int64(unmarshalSeq(t)), 0)
	}
	return cmd
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
