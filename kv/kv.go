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

// Package kv is the ordered key-value backend abstraction the engine is
// built against, generalised from erigon-lib/kv's RoDB/RwDB/Tx/RwTx/Cursor
// split. The engine package never imports a storage driver directly - it
// takes a kv.RwDB and drives it through this interface, the same way
// erigon's stagedsync package is storage-agnostic over MDBX, remote
// Cap'n Proto KV, or an in-memory test double.
package kv

import (
	"context"
)

// Label names a logical database for logging/metrics purposes, mirroring
// erigon-lib/kv's Label type (ChainDB, TxPoolDB, SentryDB, ...).
type Label string

// TableCfg maps a table name to its configuration. The engine's tables need
// no flags beyond plain ordered byte-string keys (DupSort is never needed:
// every table's key already embeds full ordering, per spec.md's key
// layouts), but the type is kept so a backend can see the whole schema
// up front, the way MDBX wants every DBI declared at environment-open time.
type TableCfg map[string]TableFlags

// TableFlags are backend-level flags for one table. Reserved for future use
// (e.g. DupSort); the engine's own tables never set any.
type TableFlags uint

// RoDB is a read-only database handle: something that can hand out
// read-only transactions.
type RoDB interface {
	View(ctx context.Context, f func(tx Tx) error) error
	Close()
}

// RwDB is a read-write database handle.
type RwDB interface {
	RoDB
	Update(ctx context.Context, f func(tx RwTx) error) error
}

// Tx is a read-only transaction/snapshot.
type Tx interface {
	GetOne(table string, key []byte) ([]byte, error)
	Has(table string, key []byte) (bool, error)
	Cursor(table string) (Cursor, error)
	Commit() error
	Rollback()
}

// RwTx is a read-write transaction.
type RwTx interface {
	Tx
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
	RwCursor(table string) (RwCursor, error)
}

// Cursor walks a table's keys in ascending byte order.
type Cursor interface {
	First() (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Seek(seek []byte) (k, v []byte, err error) // first key >= seek
	Last() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	Close()
}

// RwCursor additionally supports positioned mutation, used by the engine's
// table reset (Options.Reset) to delete every row of each table.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	Delete(k []byte) error
}
