// Copyright 2021 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package memdb is an in-process, non-durable kv.RwDB, mirroring the role
// erigon-lib/kv/memdb plays for the rest of the pack: a backend the engine
// package's tests can run against without a real MDBX environment. It
// serialises writers with a mutex rather than MDBX's MVCC, which is enough
// to exercise the engine's logic - it does not claim MDBX's concurrency or
// durability properties.
package memdb

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/erigontech/gink/kv"
)

// DB is a bare in-memory kv.RwDB.
type DB struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

// New returns an empty DB with one table per name in tables.
func New(tables kv.TableCfg) *DB {
	db := &DB{tables: make(map[string]map[string][]byte, len(tables))}
	for name := range tables {
		db.tables[name] = make(map[string][]byte)
	}
	return db
}

// Close is a no-op; memdb holds nothing outside process memory.
func (db *DB) Close() {}

// View runs f with a read lock held for its whole duration - a crude stand-
// in for MDBX's snapshot isolation, sufficient for single-goroutine tests.
func (db *DB) View(ctx context.Context, f func(tx kv.Tx) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return f(&tx{db: db})
}

// Update runs f with a write lock held, committing its writes iff f
// returns nil.
func (db *DB) Update(ctx context.Context, f func(tx kv.RwTx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	backup := make(map[string]map[string][]byte, len(db.tables))
	for name, tb := range db.tables {
		cp := make(map[string][]byte, len(tb))
		for k, v := range tb {
			cp[k] = v
		}
		backup[name] = cp
	}
	if err := f(&tx{db: db, writable: true}); err != nil {
		db.tables = backup
		return err
	}
	return nil
}

type tx struct {
	db       *DB
	writable bool
}

func (t *tx) table(name string) map[string][]byte {
	tb, ok := t.db.tables[name]
	if !ok {
		tb = make(map[string][]byte)
		t.db.tables[name] = tb
	}
	return tb
}

func (t *tx) GetOne(table string, key []byte) ([]byte, error) {
	v, ok := t.table(table)[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (t *tx) Has(table string, key []byte) (bool, error) {
	_, ok := t.table(table)[string(key)]
	return ok, nil
}

func (t *tx) Put(table string, key, value []byte) error {
	t.table(table)[string(key)] = append([]byte(nil), value...)
	return nil
}

func (t *tx) Delete(table string, key []byte) error {
	delete(t.table(table), string(key))
	return nil
}

func (t *tx) Commit() error { return nil }
func (t *tx) Rollback()     {}

func (t *tx) Cursor(table string) (kv.Cursor, error) {
	return newCursor(t.table(table)), nil
}

func (t *tx) RwCursor(table string) (kv.RwCursor, error) {
	return newCursor(t.table(table)), nil
}

// cursor snapshots its table's sorted keys at creation time, so deletions,
// and writes made through the transaction rather than the cursor, do not
// change the key list an open cursor walks (resetTables deletes rows as it
// walks them). Values are read from the live table.
type cursor struct {
	table map[string][]byte
	keys  []string
	pos   int
}

func newCursor(table map[string][]byte) *cursor {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &cursor{table: table, keys: keys, pos: -1}
}

func (c *cursor) at(i int) ([]byte, []byte, error) {
	if i < 0 || i >= len(c.keys) {
		c.pos = len(c.keys)
		return nil, nil, nil
	}
	c.pos = i
	k := c.keys[i]
	return []byte(k), append([]byte(nil), c.table[k]...), nil
}

func (c *cursor) First() ([]byte, []byte, error) { return c.at(0) }
func (c *cursor) Last() ([]byte, []byte, error)  { return c.at(len(c.keys) - 1) }
func (c *cursor) Next() ([]byte, []byte, error)  { return c.at(c.pos + 1) }
func (c *cursor) Prev() ([]byte, []byte, error)  { return c.at(c.pos - 1) }

func (c *cursor) Seek(seek []byte) ([]byte, []byte, error) {
	i := sort.Search(len(c.keys), func(i int) bool {
		return bytes.Compare([]byte(c.keys[i]), seek) >= 0
	})
	return c.at(i)
}

func (c *cursor) Put(k, v []byte) error {
	if _, ok := c.table[string(k)]; !ok {
		c.keys = insertSorted(c.keys, string(k))
	}
	c.table[string(k)] = append([]byte(nil), v...)
	return nil
}

func (c *cursor) Delete(k []byte) error {
	delete(c.table, string(k))
	return nil
}

func (c *cursor) Close() {}

func insertSorted(keys []string, k string) []string {
	i := sort.SearchStrings(keys, k)
	keys = append(keys, "")
	copy(keys[i+1:], keys[i:])
	keys[i] = k
	return keys
}
