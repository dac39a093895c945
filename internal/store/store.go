// Package store persists local token ledgers in a bolt database so that
// `tkn --local <id>` commands see the same token across invocations.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ledger"
	"github.com/boltdb/bolt"
)

const (
	tokensBucket = "tokens"
	eventsBucket = "events"
)

var (
	ErrTokenNotFound = errors.New("local token not found")
	ErrInvalidID     = errors.New("invalid token id")
)

// DB is a bolt-backed collection of local tokens keyed by id.
type DB struct {
	db *bolt.DB
}

// Summary describes a stored token without loading its full state.
type Summary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Block    uint64 `json:"block"`
	Events   int    `json:"events"`
}

// Open opens (or creates) the database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{tokensBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close releases the database file lock.
func (s *DB) Close() error {
	return s.db.Close()
}

// Save writes the token state under id, replacing any previous state.
// Events go into their own per-token bucket keyed by sequence number.
func (s *DB) Save(id string, t *ledger.Token) error {
	if id == "" {
		return ErrInvalidID
	}
	st := t.Snapshot()
	events := st.Events
	st.Events = nil
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(tokensBucket)).Put([]byte(id), data); err != nil {
			return err
		}
		eb := tx.Bucket([]byte(eventsBucket))
		if eb.Bucket([]byte(id)) != nil {
			if err := eb.DeleteBucket([]byte(id)); err != nil {
				return err
			}
		}
		b, err := eb.CreateBucket([]byte(id))
		if err != nil {
			return err
		}
		for _, ev := range events {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if err := b.Put(itob(seq), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load restores the token stored under id.
func (s *DB) Load(id string) (*ledger.Token, error) {
	var st ledger.State
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(tokensBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrTokenNotFound, id)
		}
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("decoding %s: %w", id, err)
		}
		evs, err := readEvents(tx, id)
		if err != nil {
			return err
		}
		st.Events = evs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ledger.Restore(&st)
}

// Exists reports whether id is stored.
func (s *DB) Exists(id string) bool {
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(tokensBucket)).Get([]byte(id)) != nil
		return nil
	})
	return found
}

// List returns a summary of every stored token, sorted by id.
func (s *DB) List() ([]Summary, error) {
	var out []Summary
	err := s.db.View(func(tx *bolt.Tx) error {
		eb := tx.Bucket([]byte(eventsBucket))
		return tx.Bucket([]byte(tokensBucket)).ForEach(func(k, v []byte) error {
			var st ledger.State
			if err := json.Unmarshal(v, &st); err != nil {
				return fmt.Errorf("decoding %s: %w", k, err)
			}
			n := 0
			if b := eb.Bucket(k); b != nil {
				n = b.Stats().KeyN
			}
			out = append(out, Summary{
				ID:       string(k),
				Name:     st.Name,
				Symbol:   st.Symbol,
				Decimals: st.Decimals,
				Block:    st.Block,
				Events:   n,
			})
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// Delete removes id and its events.
func (s *DB) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tb := tx.Bucket([]byte(tokensBucket))
		if tb.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrTokenNotFound, id)
		}
		if err := tb.Delete([]byte(id)); err != nil {
			return err
		}
		eb := tx.Bucket([]byte(eventsBucket))
		if eb.Bucket([]byte(id)) != nil {
			return eb.DeleteBucket([]byte(id))
		}
		return nil
	})
}

func readEvents(tx *bolt.Tx, id string) ([]erc20.Event, error) {
	b := tx.Bucket([]byte(eventsBucket)).Bucket([]byte(id))
	if b == nil {
		return nil, nil
	}
	var evs []erc20.Event
	err := b.ForEach(func(k, v []byte) error {
		var ev erc20.Event
		if err := json.Unmarshal(v, &ev); err != nil {
			return fmt.Errorf("event %d: %w", binary.BigEndian.Uint64(k), err)
		}
		evs = append(evs, ev)
		return nil
	})
	return evs, err
}

// itob encodes a sequence number big-endian so bolt's byte order matches
// emission order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
