// SPDX-License-Identifier: MIT

package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/offlinekit/internal/manifest"
)

var (
	badgerEntryPrefix = []byte("e\x00")
	badgerActiveKey   = []byte("m\x00active")
)

// BadgerStore implements Store on an embedded Badger database.
// Entries live under "e\x00<generation>\x00<key>".
type BadgerStore struct {
	db    *badger.DB
	stats counters
}

// OpenBadgerStore opens a Badger store at path; an empty path keeps it in memory.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerGenPrefix(gen manifest.Generation) []byte {
	p := append([]byte(nil), badgerEntryPrefix...)
	p = append(p, string(gen)...)
	return append(p, 0)
}

func badgerKey(gen manifest.Generation, key string) []byte {
	return append(badgerGenPrefix(gen), key...)
}

func (s *BadgerStore) Get(_ context.Context, gen manifest.Generation, key string) (*Entry, error) {
	var out *Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(gen, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			out = &e
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.stats.observe(false)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.stats.observe(true)
	return out, nil
}

func (s *BadgerStore) Put(ctx context.Context, gen manifest.Generation, e *Entry) error {
	return s.PutAll(ctx, gen, []*Entry{e})
}

// PutAll writes all entries in one transaction; a batch larger than
// Badger's transaction limit fails as a whole with badger.ErrTxnTooBig.
func (s *BadgerStore) PutAll(_ context.Context, gen manifest.Generation, entries []*Entry) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			buf, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode entry %s: %w", e.Key, err)
			}
			if err := txn.Set(badgerKey(gen, e.Key), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.stats.sets.Add(int64(len(entries)))
	return nil
}

func (s *BadgerStore) Generations(_ context.Context) ([]manifest.Generation, error) {
	seen := make(map[manifest.Generation]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = badgerEntryPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), badgerEntryPrefix)
			if i := bytes.IndexByte(rest, 0); i >= 0 {
				seen[manifest.Generation(rest[:i])] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]manifest.Generation, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sortGenerations(out)
	return out, nil
}

func (s *BadgerStore) DeleteGeneration(ctx context.Context, gen manifest.Generation) error {
	if err := s.db.DropPrefix(badgerGenPrefix(gen)); err != nil {
		return err
	}
	active, err := s.Active(ctx)
	if err != nil {
		return err
	}
	if active != gen {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerActiveKey)
	})
}

func (s *BadgerStore) Active(_ context.Context) (manifest.Generation, error) {
	var gen manifest.Generation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerActiveKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			gen = manifest.Generation(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	return gen, err
}

func (s *BadgerStore) SetActive(_ context.Context, gen manifest.Generation) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerActiveKey, []byte(gen))
	})
}

func (s *BadgerStore) Stats() Stats { return s.stats.snapshot() }

func (s *BadgerStore) Close() error { return s.db.Close() }
