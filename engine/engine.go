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

// Package engine implements the storage engine: bundle ingestion, point and
// range queries over container entries, and the reset-diff generator. It is
// the ~55% component spec.md §2 describes; everything else in this module
// exists to support it.
package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/erigontech/gink/chain"
	"github.com/erigontech/gink/chaintracker"
	"github.com/erigontech/gink/entrykey"
	"github.com/erigontech/gink/kv"
	"github.com/erigontech/gink/kv/mdbx"
	"github.com/erigontech/gink/muid"
	"github.com/erigontech/gink/wire"
)

// Engine owns one open backend and answers every query spec.md §6 exposes.
// An Engine has no mutable state of its own beyond the backend handle and
// the container-def cache; Open and Close bound its lifetime.
type Engine struct {
	db     kv.RwDB
	logger *zap.Logger
	cache  *lru.Cache[muid.Muid, wire.ContainerDef]
}

// Open opens (creating if necessary) the backend at opts.Path. If
// opts.Reset is set, every table is truncated after opening - the file
// itself is never removed.
func Open(opts Options) (*Engine, error) {
	fs := opts.fs()
	if err := fs.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, backend(err)
	}

	db, err := mdbx.Open(mdbx.Options{
		Path:    opts.Path,
		MapSize: opts.mapSize(),
		Tables:  kv.Tables,
	})
	if err != nil {
		return nil, backend(err)
	}

	e, err := Wrap(db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	e.logger.Info("engine opened", zap.String("path", opts.Path), zap.Bool("reset", opts.Reset))
	return e, nil
}

// Wrap builds an Engine directly over an already-open kv.RwDB, applying
// opts.Reset if set. It exists mainly so tests can drive the engine
// against kv/memdb instead of a real MDBX environment; production callers
// should use Open.
func Wrap(db kv.RwDB, opts Options) (*Engine, error) {
	cache, err := newContainerDefCache()
	if err != nil {
		return nil, backend(err)
	}
	e := &Engine{db: db, logger: opts.logger(), cache: cache}
	if opts.Reset {
		if err := e.resetTables(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Close releases the backend.
func (e *Engine) Close() {
	e.db.Close()
}

func (e *Engine) resetTables() error {
	return e.db.Update(context.Background(), func(tx kv.RwTx) error {
		for name := range kv.Tables {
			c, err := tx.RwCursor(name)
			if err != nil {
				return backend(err)
			}
			if err := clearTable(c); err != nil {
				c.Close()
				return backend(err)
			}
			c.Close()
		}
		return nil
	})
}

func clearTable(c kv.RwCursor) error {
	k, _, err := c.First()
	if err != nil {
		return err
	}
	for k != nil {
		if err := c.Delete(k); err != nil {
			return err
		}
		k, _, err = c.Next()
		if err != nil {
			return err
		}
	}
	return nil
}

// AddBundle decodes raw as a wire.Bundle, applies spec.md §4.4's
// acceptance rule against chain-infos, and, if accepted, writes the
// bundle, the chain-infos head, and every change atomically. accepted=false
// is not an error: it covers both an already-seen bundle (idempotent
// re-ingestion) and a genuinely broken chain link.
func (e *Engine) AddBundle(raw []byte) (chain.BundleInfo, bool, error) {
	bd, err := wire.Unmarshal(raw)
	if err != nil {
		return chain.BundleInfo{}, false, corrupt(err, "decode bundle")
	}
	info := bd.Info()

	var accepted bool
	err = e.db.Update(context.Background(), func(tx kv.RwTx) error {
		chainKey := info.Chain().Bytes()
		prevBytes, err := tx.GetOne(kv.ChainInfos, chainKey[:])
		if err != nil {
			return backend(err)
		}

		if prevBytes == nil {
			accepted = info.PriorTime == 0 && info.Timestamp == info.ChainStart
		} else {
			prev, err := chain.InfoFromBytes(prevBytes)
			if err != nil {
				return corrupt(err, "decode chain-infos head")
			}
			accepted = info.PriorTime == prev.Timestamp && info.Timestamp > prev.Timestamp
		}
		if !accepted {
			return nil
		}

		infoBytes := info.Bytes()
		if err := tx.Put(kv.Bundles, infoBytes[:], raw); err != nil {
			return backend(err)
		}
		if err := tx.Put(kv.ChainInfos, chainKey[:], infoBytes[:]); err != nil {
			return backend(err)
		}

		for _, off := range bd.SortedOffsets() {
			c := bd.Changes[off]
			if err := e.applyChange(tx, info, off, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return chain.BundleInfo{}, false, err
	}
	return info, accepted, nil
}

func (e *Engine) applyChange(tx kv.RwTx, info chain.BundleInfo, offset int32, c wire.Change) error {
	switch {
	case c.HasContainer && c.HasEntry:
		return corruptf("change at offset %d has both a container and an entry", offset)

	case c.HasContainer:
		cm := muid.Muid{Timestamp: info.Timestamp, Medallion: info.Medallion, Offset: offset}
		cb := cm.Bytes()
		if err := tx.Put(kv.ContainerDefs, cb[:], c.ContainerDef); err != nil {
			return backend(err)
		}
		return nil

	case c.HasEntry:
		srcMuid, err := muid.Create(c.Entry.Container, info, 0)
		if err != nil {
			return corrupt(err, "resolve entry's container reference")
		}
		entryMuid, err := muid.Create(muid.Ref{}, info, offset)
		if err != nil {
			return corrupt(err, "resolve entry muid")
		}
		def, err := e.containerDef(tx, srcMuid)
		if err != nil {
			return err
		}
		middleKey, err := middleKeyFor(def.Behavior, c.Entry, entryMuid)
		if err != nil {
			return corrupt(err, "compute middle key")
		}
		ek := entrykey.Build(entrykey.Key{
			Container: srcMuid,
			MiddleKey: middleKey,
			EntryMuid: entryMuid,
			Expiry:    c.Entry.Expiry,
		})
		if err := tx.Put(kv.Entries, ek, c.Entry.Marshal()); err != nil {
			return backend(err)
		}
		return nil

	default:
		return corruptf("change at offset %d is neither a container nor an entry", offset)
	}
}

// middleKeyFor builds the middle-key envelope for an entry according to its
// container's behavior (entrykey's three shapes, see §4.10).
func middleKeyFor(b entrykey.Behavior, e wire.Entry, entryMuid muid.Muid) ([]byte, error) {
	switch b {
	case entrykey.Directory:
		if !e.HasKey {
			return nil, corruptf("directory entry missing key")
		}
		return e.Key, nil
	case entrykey.Sequence:
		moveMuid := entryMuid
		if e.HasMove {
			m, err := muid.Create(e.Move, entryMuid, 0)
			if err != nil {
				return nil, err
			}
			moveMuid = m
		}
		eff := e.Effective
		if eff == 0 {
			eff = entryMuid.Timestamp
		}
		return entrykey.SequenceMiddleKey(eff, moveMuid), nil
	default:
		return nil, nil
	}
}

// GetEntry returns the newest entry for (container, key) with
// entry-muid.timestamp <= asOf, if any (spec.md §4.5).
func (e *Engine) GetEntry(container muid.Muid, key interface{}, asOf int64) (muid.Muid, wire.Entry, bool, error) {
	mk, err := entrykey.EncodeUserKey(key)
	if err != nil {
		return muid.Muid{}, wire.Entry{}, false, invalidArgf("encode key: %v", err)
	}

	var (
		resultMuid  muid.Muid
		resultEntry wire.Entry
		found       bool
	)
	err = e.db.View(context.Background(), func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.Entries)
		if err != nil {
			return backend(err)
		}
		defer c.Close()

		seek := entrykey.SeekAsOf(container, mk, asOf)
		k, v, err := c.Seek(seek)
		if err != nil {
			return backend(err)
		}
		prefix := entrykey.WithMiddle(container, mk)
		if k == nil || !bytes.HasPrefix(k, prefix) {
			return nil
		}
		parsed, err := entrykey.Parse(k)
		if err != nil {
			return corrupt(err, "parse entry key")
		}
		entry, err := wire.UnmarshalEntry(v)
		if err != nil {
			return corrupt(err, "decode entry")
		}
		resultMuid, resultEntry, found = parsed.EntryMuid, entry, true
		return nil
	})
	return resultMuid, resultEntry, found, err
}

// KeyedEntry is one row GetKeyedEntries emits.
type KeyedEntry struct {
	Muid  muid.Muid
	Entry wire.Entry
}

// GetKeyedEntries walks every distinct middle-key of container, emitting
// the newest entry at or before asOf for each (spec.md §4.6). f is called
// in ascending middle-key order; returning false from f stops iteration
// early without error.
func (e *Engine) GetKeyedEntries(container muid.Muid, asOf int64, f func(KeyedEntry) (bool, error)) error {
	return e.db.View(context.Background(), func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.Entries)
		if err != nil {
			return backend(err)
		}
		defer c.Close()

		containerPrefix := entrykey.Prefix(container)
		k, _, err := c.Seek(containerPrefix)
		if err != nil {
			return backend(err)
		}

		for k != nil && bytes.HasPrefix(k, containerPrefix) {
			mk, err := entrykey.MiddleKeyOf(k, container)
			if err != nil {
				return corrupt(err, "parse middle key")
			}

			groupPrefix := entrykey.WithMiddle(container, mk)
			ak, av, err := c.Seek(entrykey.SeekAsOf(container, mk, asOf))
			if err != nil {
				return backend(err)
			}
			if ak != nil && bytes.HasPrefix(ak, groupPrefix) {
				parsed, err := entrykey.Parse(ak)
				if err != nil {
					return corrupt(err, "parse entry key")
				}
				entry, err := wire.UnmarshalEntry(av)
				if err != nil {
					return corrupt(err, "decode entry")
				}
				cont, err := f(KeyedEntry{Muid: parsed.EntryMuid, Entry: entry})
				if err != nil {
					return err
				}
				if !cont {
					return nil
				}
			}

			// SeekPastGroup's key never equals a real row (it carries no
			// expiry trailer), so the seek alone lands past every row of
			// this middle-key - no separate "step once" is needed here.
			k, _, err = c.Seek(entrykey.SeekPastGroup(container, mk))
			if err != nil {
				return backend(err)
			}
		}
		return nil
	})
}

// GetBundles scans the bundles table in stored (timestamp-major) order,
// invoking f with each bundle's raw bytes and decoded BundleInfo.
func (e *Engine) GetBundles(f func(raw []byte, info chain.BundleInfo) (bool, error)) error {
	return e.db.View(context.Background(), func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.Bundles)
		if err != nil {
			return backend(err)
		}
		defer c.Close()

		for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
			if err != nil {
				return backend(err)
			}
			info, err := chain.InfoFromBytes(k)
			if err != nil {
				return corrupt(err, "parse bundle info key")
			}
			cont, err := f(v, info)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

// GetChainTracker scans chain-infos and returns a freshly populated
// *chaintracker.Tracker.
func (e *Engine) GetChainTracker() (*chaintracker.Tracker, error) {
	tr := chaintracker.New()
	err := e.db.View(context.Background(), func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.ChainInfos)
		if err != nil {
			return backend(err)
		}
		defer c.Close()

		for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
			if err != nil {
				return backend(err)
			}
			info, err := chain.InfoFromBytes(v)
			if err != nil {
				return corrupt(err, "parse chain-infos value")
			}
			tr.MarkAsHaving(info)
		}
		return nil
	})
	return tr, err
}

// ClaimChain records that this instance may append to c. The engine
// enforces no uniqueness here - two processes claiming the same chain
// concurrently is a caller error (spec.md §9(b), §4.8).
func (e *Engine) ClaimChain(c chain.Chain) error {
	return e.db.Update(context.Background(), func(tx kv.RwTx) error {
		var key, val [8]byte
		binary.BigEndian.PutUint64(key[:], uint64(c.Medallion))
		binary.BigEndian.PutUint64(val[:], uint64(c.ChainStart))
		if err := tx.Put(kv.ClaimedChains, key[:], val[:]); err != nil {
			return backend(err)
		}
		return nil
	})
}

// GetClaimedChains enumerates every chain ClaimChain has recorded.
func (e *Engine) GetClaimedChains() ([]chain.Chain, error) {
	var out []chain.Chain
	err := e.db.View(context.Background(), func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.ClaimedChains)
		if err != nil {
			return backend(err)
		}
		defer c.Close()

		for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
			if err != nil {
				return backend(err)
			}
			out = append(out, chain.Chain{
				Medallion:  int64(binary.BigEndian.Uint64(k)),
				ChainStart: int64(binary.BigEndian.Uint64(v)),
			})
		}
		return nil
	})
	return out, err
}
