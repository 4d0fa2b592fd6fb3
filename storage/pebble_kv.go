package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// compactionBound is an upper bound no real key sorts past (every key this
// package writes starts with a prefix byte below 0xFF, the longest being a
// transaction key of 1 + HashLength = 33 bytes, so 32 bytes of 0xFF sorts
// after any of them), used to ask pebble to compact the entire keyspace.
var compactionBound = []byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// PebbleKV is the default KV implementation, backed by
// github.com/cockroachdb/pebble (§6's "default concrete implementation
// of the external KV persistence interface").
type PebbleKV struct {
	db *pebble.DB
}

// OpenPebble opens (creating if absent) a pebble store at dir.
func OpenPebble(dir string) (*PebbleKV, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleKV{db: db}, nil
}

func (p *PebbleKV) Put(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleKV) Get(key []byte) ([]byte, error) {
	v, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	// v is only valid until closer.Close(); copy it out.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (p *PebbleKV) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

func (p *PebbleKV) Compact() error {
	return p.db.Compact(nil, compactionBound, false)
}

func (p *PebbleKV) Snapshot() (Snapshot, error) {
	return &pebbleSnapshot{snap: p.db.NewSnapshot()}, nil
}

func (p *PebbleKV) Close() error {
	return p.db.Close()
}

type pebbleSnapshot struct {
	snap *pebble.Snapshot
}

func (s *pebbleSnapshot) Get(key []byte) ([]byte, error) {
	v, closer, err := s.snap.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *pebbleSnapshot) Close() error {
	return s.snap.Close()
}
