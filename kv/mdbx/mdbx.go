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

// Package mdbx backs kv.RwDB with github.com/erigontech/mdbx-go, the same
// driver erigon-lib/kv/mdbx wraps. A single process opens exactly one
// environment; MDBX's own single-writer-multiple-reader MVCC model is what
// spec.md §5 leans on to serialise concurrent AddBundle calls without the
// engine needing its own write lock.
package mdbx

import (
	"context"
	"os"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"

	"github.com/erigontech/gink/kv"
)

// Options configures the on-disk environment.
type Options struct {
	Path    string
	MapSize datasize.ByteSize
	Tables  kv.TableCfg
}

// DB wraps an open MDBX environment as a kv.RwDB.
type DB struct {
	env    *mdbx.Env
	dbis   map[string]mdbx.DBI
	tables kv.TableCfg
}

// Open creates (if necessary) and opens the environment at opts.Path,
// declaring every table in opts.Tables as its own named DBI up front -
// MDBX, unlike LMDB, allows this without a prior "create" transaction per
// table.
func Open(opts Options) (*DB, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "mdbx: new env")
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(opts.Tables))); err != nil {
		return nil, errors.Wrap(err, "mdbx: set max dbs")
	}
	size := opts.MapSize
	if size == 0 {
		size = 1 * datasize.GB
	}
	if err := env.SetGeometry(-1, -1, int(size), -1, -1, -1); err != nil {
		return nil, errors.Wrap(err, "mdbx: set geometry")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, errors.Wrap(err, "mdbx: mkdir")
	}
	if err := env.Open(opts.Path, mdbx.NoSubdir|mdbx.Coalesce|mdbx.LifoReclaim, 0o644); err != nil {
		return nil, errors.Wrap(err, "mdbx: open env")
	}

	db := &DB{env: env, dbis: map[string]mdbx.DBI{}, tables: opts.Tables}
	err = env.Update(func(txn *mdbx.Txn) error {
		for name := range opts.Tables {
			dbi, err := txn.OpenDBI(name, mdbx.Create, nil, nil)
			if err != nil {
				return errors.Wrapf(err, "mdbx: open dbi %s", name)
			}
			db.dbis[name] = dbi
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the environment.
func (db *DB) Close() {
	db.env.Close()
}

// View runs f against a read-only snapshot.
func (db *DB) View(ctx context.Context, f func(tx kv.Tx) error) error {
	return db.env.View(func(txn *mdbx.Txn) error {
		return f(&Tx{txn: txn, dbis: db.dbis})
	})
}

// Update runs f inside a single read-write transaction, committed iff f
// returns nil. MDBX serialises writers, so at most one Update body runs at
// a time across the whole environment.
func (db *DB) Update(ctx context.Context, f func(tx kv.RwTx) error) error {
	return db.env.Update(func(txn *mdbx.Txn) error {
		return f(&Tx{txn: txn, dbis: db.dbis, writable: true})
	})
}

// Tx adapts an *mdbx.Txn to kv.Tx / kv.RwTx.
type Tx struct {
	txn      *mdbx.Txn
	dbis     map[string]mdbx.DBI
	writable bool
}

func (t *Tx) dbi(table string) (mdbx.DBI, error) {
	d, ok := t.dbis[table]
	if !ok {
		return 0, errors.Errorf("mdbx: unknown table %q", table)
	}
	return d, nil
}

// GetOne returns the value for key, or nil if absent.
func (t *Tx) GetOne(table string, key []byte) ([]byte, error) {
	d, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(d, key)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "mdbx: get %s", table)
	}
	return v, nil
}

// Has reports whether key is present in table.
func (t *Tx) Has(table string, key []byte) (bool, error) {
	v, err := t.GetOne(table, key)
	return v != nil, err
}

// Cursor opens a read-only cursor over table.
func (t *Tx) Cursor(table string) (kv.Cursor, error) {
	d, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(d)
	if err != nil {
		return nil, errors.Wrapf(err, "mdbx: open cursor %s", table)
	}
	return &cursor{c: c}, nil
}

// RwCursor opens a read-write cursor over table.
func (t *Tx) RwCursor(table string) (kv.RwCursor, error) {
	c, err := t.Cursor(table)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c.(*cursor).c}, nil
}

// Put writes key/value into table.
func (t *Tx) Put(table string, key, value []byte) error {
	d, err := t.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Put(d, key, value, 0); err != nil {
		return errors.Wrapf(err, "mdbx: put %s", table)
	}
	return nil
}

// Delete removes key from table.
func (t *Tx) Delete(table string, key []byte) error {
	d, err := t.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Del(d, key, nil); err != nil && !mdbx.IsNotFound(err) {
		return errors.Wrapf(err, "mdbx: delete %s", table)
	}
	return nil
}

// Commit is a no-op: mdbx.Env.View/Update commit (or abort) the underlying
// transaction based on the callback's return value, so the engine's own
// Commit/Rollback calls inside that callback are advisory only.
func (t *Tx) Commit() error { return nil }

// Rollback is likewise a no-op for the same reason; the engine returns an
// error from its callback to roll back instead.
func (t *Tx) Rollback() {}

type cursor struct {
	c *mdbx.Cursor
}

func (c *cursor) First() ([]byte, []byte, error) { return c.op(mdbx.First, nil) }
func (c *cursor) Next() ([]byte, []byte, error)  { return c.op(mdbx.Next, nil) }
func (c *cursor) Last() ([]byte, []byte, error)  { return c.op(mdbx.Last, nil) }
func (c *cursor) Prev() ([]byte, []byte, error)  { return c.op(mdbx.Prev, nil) }

// Seek returns the first key >= seek, matching kv.Cursor's contract.
func (c *cursor) Seek(seek []byte) ([]byte, []byte, error) {
	return c.op(mdbx.SetRange, seek)
}

func (c *cursor) op(flag uint, key []byte) ([]byte, []byte, error) {
	k, v, err := c.c.Get(key, nil, flag)
	if mdbx.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "mdbx: cursor")
	}
	return k, v, nil
}

func (c *cursor) Put(k, v []byte) error {
	if err := c.c.Put(k, v, 0); err != nil {
		return errors.Wrap(err, "mdbx: cursor put")
	}
	return nil
}

func (c *cursor) Delete(k []byte) error {
	if _, _, err := c.op(mdbx.SetRange, k); err != nil {
		return err
	}
	if err := c.c.Del(0); err != nil && !mdbx.IsNotFound(err) {
		return errors.Wrap(err, "mdbx: cursor delete")
	}
	return nil
}

func (c *cursor) Close() { c.c.Close() }
