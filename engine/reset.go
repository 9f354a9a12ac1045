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

package engine

import (
	"bytes"
	"context"

	"github.com/erigontech/gink/entrykey"
	"github.com/erigontech/gink/kv"
	"github.com/erigontech/gink/muid"
	"github.com/erigontech/gink/wire"
)

// ResetChange is one compensating change get_reset_changes would need to
// apply to move the live view back to a historical instant: either a
// historical entry blob (Tombstone=false) or a synthetic tombstone
// (Tombstone=true, Entry left zero) for a (container, middle-key) that
// didn't exist yet at that instant.
type ResetChange struct {
	Container muid.Muid
	MiddleKey []byte
	Entry     wire.Entry
	Tombstone bool
}

// GetResetChanges implements spec.md §4.7. container == nil selects every
// container-def with muid.timestamp <= toTime; key must be nil in that
// case. f is invoked for each compensating change; returning false stops
// the walk early without error.
func (e *Engine) GetResetChanges(toTime int64, container *muid.Muid, key interface{}, recursive bool, f func(ResetChange) (bool, error)) error {
	if container == nil && key != nil {
		return invalidArgf("get_reset_changes: key given without a container")
	}

	return e.db.View(context.Background(), func(tx kv.Tx) error {
		seen := map[muid.Muid]bool{}

		if container != nil {
			seen[*container] = true
			if key != nil {
				mk, err := entrykey.EncodeUserKey(key)
				if err != nil {
					return invalidArgf("encode key: %v", err)
				}
				_, err = e.resetMiddleKey(tx, *container, mk, toTime, seen, recursive, f)
				return err
			}
			_, err := e.resetContainer(tx, *container, toTime, seen, recursive, f)
			return err
		}

		cc, err := tx.Cursor(kv.ContainerDefs)
		if err != nil {
			return backend(err)
		}
		defer cc.Close()

		for k, _, err := cc.First(); k != nil; k, _, err = cc.Next() {
			if err != nil {
				return backend(err)
			}
			cm, err := muid.FromBytes(k)
			if err != nil {
				return corrupt(err, "parse container muid")
			}
			if cm.Timestamp > toTime || seen[cm] {
				continue
			}
			seen[cm] = true
			// recursive is implicitly false here: every container is
			// already being enumerated directly, so following pointers
			// found along the way would only repeat that enumeration.
			cont, err := e.resetContainer(tx, cm, toTime, seen, false, f)
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

// resetContainer runs the per-middle-key walk for every middle-key of
// container.
func (e *Engine) resetContainer(tx kv.Tx, container muid.Muid, toTime int64, seen map[muid.Muid]bool, recursive bool, f func(ResetChange) (bool, error)) (bool, error) {
	c, err := tx.Cursor(kv.Entries)
	if err != nil {
		return false, backend(err)
	}
	defer c.Close()

	containerPrefix := entrykey.Prefix(container)
	k, _, err := c.Seek(containerPrefix)
	if err != nil {
		return false, backend(err)
	}

	for k != nil && bytes.HasPrefix(k, containerPrefix) {
		mk, err := entrykey.MiddleKeyOf(k, container)
		if err != nil {
			return false, corrupt(err, "parse middle key")
		}

		cont, err := e.resetMiddleKey(tx, container, mk, toTime, seen, recursive, f)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}

		k, _, err = c.Seek(entrykey.SeekPastGroup(container, mk))
		if err != nil {
			return false, backend(err)
		}
	}
	return true, nil
}

// resetMiddleKey runs the single-(container, middle-key) walk spec.md
// §4.7 describes: find the live entry ("now"); if it already satisfies
// toTime, nothing to emit; otherwise find the newest entry at or before
// toTime ("then"), emitting it (unless equivalent to "now") or a synthetic
// tombstone if no such entry exists. Recurses into a pointee container when
// recursive is set.
func (e *Engine) resetMiddleKey(tx kv.Tx, container muid.Muid, mk []byte, toTime int64, seen map[muid.Muid]bool, recursive bool, f func(ResetChange) (bool, error)) (bool, error) {
	c, err := tx.Cursor(kv.Entries)
	if err != nil {
		return false, backend(err)
	}
	defer c.Close()

	groupPrefix := entrykey.WithMiddle(container, mk)
	nowKey, nowVal, err := c.Seek(groupPrefix)
	if err != nil {
		return false, backend(err)
	}
	if nowKey == nil || !bytes.HasPrefix(nowKey, groupPrefix) {
		// No entry was ever written for this middle-key.
		return true, nil
	}
	nowParsed, err := entrykey.Parse(nowKey)
	if err != nil {
		return false, corrupt(err, "parse entry key")
	}
	nowEntry, err := wire.UnmarshalEntry(nowVal)
	if err != nil {
		return false, corrupt(err, "decode entry")
	}

	var (
		thenEntry wire.Entry
		thenMuid  muid.Muid
		tombstone bool
	)

	if nowParsed.EntryMuid.Timestamp <= toTime {
		thenEntry, thenMuid = nowEntry, nowParsed.EntryMuid
	} else {
		thenKey, thenVal, err := c.Seek(entrykey.SeekAsOf(container, mk, toTime))
		if err != nil {
			return false, backend(err)
		}
		if thenKey == nil || !bytes.HasPrefix(thenKey, groupPrefix) {
			tombstone = true
			cont, err := f(ResetChange{Container: container, MiddleKey: mk, Tombstone: true})
			if err != nil {
				return false, err
			}
			if !cont {
				return false, nil
			}
		} else {
			thenParsed, err := entrykey.Parse(thenKey)
			if err != nil {
				return false, corrupt(err, "parse entry key")
			}
			thenEntry, err = wire.UnmarshalEntry(thenVal)
			if err != nil {
				return false, corrupt(err, "decode entry")
			}
			thenMuid = thenParsed.EntryMuid
			if !nowEntry.Equivalent(thenEntry) {
				cont, err := f(ResetChange{Container: container, MiddleKey: mk, Entry: thenEntry})
				if err != nil {
					return false, err
				}
				if !cont {
					return false, nil
				}
			}
		}
	}

	if recursive && !tombstone && thenEntry.HasPointee {
		childMuid, err := muid.Create(thenEntry.Pointee, thenMuid, 0)
		if err != nil {
			return false, corrupt(err, "resolve pointee reference")
		}
		if !seen[childMuid] {
			seen[childMuid] = true
			cont, err := e.resetContainer(tx, childMuid, toTime, seen, recursive, f)
			if err != nil {
				return false, err
			}
			if !cont {
				return false, nil
			}
		}
	}
	return true, nil
}
