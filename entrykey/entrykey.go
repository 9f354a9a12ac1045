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

// Package entrykey builds and parses the composite entries-table key:
//
//	container-muid(16) || middle-key(var) || inv(entry-muid)(16) || expiry(be64)
//
// and the per-behavior middle-key envelopes slotted into it. Keeping the
// entry-muid inverted means a forward seek to container||middle-key||
// inv(Muid(T+1,0,0)) lands on the newest entry with entry-timestamp <= T: see
// muid.Muid.Invert and SeekAsOf.
package entrykey

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/erigontech/gink/muid"
)

// Behavior tags how a container's middle-key envelope is shaped. It is an
// open enumeration - original_source/python/gink/impl/patch.py registers
// several more (BOX, SET, ...) - but every behavior other than DIRECTORY and
// SEQUENCE shares PROPERTY's "no key" envelope, so those three are the only
// shapes the entry-key layout itself needs to know about.
type Behavior uint8

const (
	Directory Behavior = iota
	Sequence
	Property
)

// trailerSize is the fixed-width suffix of every entries-table key: the
// inverted entry-muid (16B) plus the expiry (8B).
const trailerSize = muid.Size + 8

// EncodeUserKey serialises a DIRECTORY user key (string or int64) into the
// middle-key envelope. The blob needs no internal length framing: the
// composite key parser recovers its length as "everything between the
// container prefix and the fixed 24-byte trailer."
func EncodeUserKey(key any) ([]byte, error) {
	switch v := key.(type) {
	case string:
		out := make([]byte, 1+len(v))
		out[0] = 0x00
		copy(out[1:], v)
		return out, nil
	case int64:
		out := make([]byte, 1+8)
		out[0] = 0x01
		binary.BigEndian.PutUint64(out[1:], uint64(v))
		return out, nil
	case int:
		return EncodeUserKey(int64(v))
	case nil:
		return nil, nil
	default:
		return nil, errors.Errorf("entrykey: unsupported user key type %T", key)
	}
}

// DecodeUserKey reverses EncodeUserKey.
func DecodeUserKey(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	switch b[0] {
	case 0x00:
		return string(b[1:]), nil
	case 0x01:
		if len(b) != 9 {
			return nil, errors.Errorf("entrykey: malformed int user key (%d bytes)", len(b))
		}
		return int64(binary.BigEndian.Uint64(b[1:])), nil
	default:
		return nil, errors.Errorf("entrykey: unknown user key tag 0x%02x", b[0])
	}
}

// SequenceMiddleKey builds the SEQUENCE envelope: effective-time(be64) ||
// move-muid(16). moveMuid equals the entry-muid on initial placement, and
// changes when the entry is later repositioned.
func SequenceMiddleKey(effectiveTime int64, moveMuid muid.Muid) []byte {
	out := make([]byte, 8+muid.Size)
	binary.BigEndian.PutUint64(out[:8], uint64(effectiveTime))
	mb := moveMuid.Bytes()
	copy(out[8:], mb[:])
	return out
}

// ParseSequenceMiddleKey reverses SequenceMiddleKey.
func ParseSequenceMiddleKey(b []byte) (effectiveTime int64, moveMuid muid.Muid, err error) {
	if len(b) != 8+muid.Size {
		return 0, muid.Muid{}, errors.Errorf("entrykey: malformed sequence middle key (%d bytes)", len(b))
	}
	effectiveTime = int64(binary.BigEndian.Uint64(b[:8]))
	moveMuid, err = muid.FromBytes(b[8:])
	return effectiveTime, moveMuid, err
}

// Prefix returns the container-only prefix: container-muid(16).
func Prefix(container muid.Muid) []byte {
	cb := container.Bytes()
	out := make([]byte, len(cb))
	copy(out, cb[:])
	return out
}

// WithMiddle appends a middle-key to a container prefix.
func WithMiddle(container muid.Muid, middleKey []byte) []byte {
	return append(Prefix(container), middleKey...)
}

// SeekAsOf builds the key to seek to (via Cursor.Seek) in order to land on
// the newest entry in (container, middleKey) with entry-timestamp <= asOf:
// container || middleKey || inv(Muid(asOf+1, 0, 0)). Inverting the next
// timestamp keeps entries stamped exactly asOf (whose medallion and offset
// are non-zero) at or after the seek key.
func SeekAsOf(container muid.Muid, middleKey []byte, asOf int64) []byte {
	inv := muid.Muid{Timestamp: asOf + 1}.Invert()
	ib := inv.Bytes()
	out := WithMiddle(container, middleKey)
	return append(out, ib[:]...)
}

// SeekPastGroup builds the all-ones key - container || middleKey ||
// inv(Muid(0,0,0)) - that every row of this middle-key sorts before, since a
// real entry-muid is never zero. A seek to it therefore lands directly at the
// start of the next middle-key's entries (or off the container entirely),
// with no extra cursor step.
func SeekPastGroup(container muid.Muid, middleKey []byte) []byte {
	inv := muid.Zero.Invert()
	ib := inv.Bytes()
	out := WithMiddle(container, middleKey)
	return append(out, ib[:]...)
}

// Key is the parsed form of a composite entries-table key.
type Key struct {
	Container muid.Muid
	MiddleKey []byte
	EntryMuid muid.Muid // already un-inverted
	Expiry    int64
}

// Build packs a Key into its composite byte form.
func Build(k Key) []byte {
	out := WithMiddle(k.Container, k.MiddleKey)
	ib := k.EntryMuid.Invert().Bytes()
	out = append(out, ib[:]...)
	var exp [8]byte
	binary.BigEndian.PutUint64(exp[:], uint64(k.Expiry))
	return append(out, exp[:]...)
}

// Parse reverses Build.
func Parse(raw []byte) (Key, error) {
	if len(raw) < muid.Size+trailerSize {
		return Key{}, errors.Errorf("entrykey: key too short (%d bytes)", len(raw))
	}
	container, err := muid.FromBytes(raw[:muid.Size])
	if err != nil {
		return Key{}, errors.Wrap(err, "entrykey: container muid")
	}
	middleEnd := len(raw) - trailerSize
	middleKey := raw[muid.Size:middleEnd]
	invMuid, err := muid.FromBytes(raw[middleEnd : middleEnd+muid.Size])
	if err != nil {
		return Key{}, errors.Wrap(err, "entrykey: entry muid")
	}
	expiry := int64(binary.BigEndian.Uint64(raw[middleEnd+muid.Size:]))
	return Key{
		Container: container,
		MiddleKey: append([]byte(nil), middleKey...),
		EntryMuid: invMuid.Invert(),
		Expiry:    expiry,
	}, nil
}

// MiddleKeyOf strips the container prefix and trailer from a raw composite
// key, returning just the middle-key bytes. Used by the range walk
// (get_keyed_entries) when it only needs to detect a middle-key boundary
// without fully parsing the entry-muid.
func MiddleKeyOf(raw []byte, container muid.Muid) ([]byte, error) {
	prefix := Prefix(container)
	if !bytes.HasPrefix(raw, prefix) {
		return nil, errors.New("entrykey: key does not belong to container")
	}
	if len(raw) < len(prefix)+trailerSize {
		return nil, errors.Errorf("entrykey: key too short (%d bytes)", len(raw))
	}
	return raw[len(prefix) : len(raw)-trailerSize], nil
}
