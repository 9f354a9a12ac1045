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

// Package wire is the bundle/change/entry envelope the engine consumes.
// Producing and transporting these bytes between nodes is out of scope for
// the engine (spec.md §1); this package plays the part the pack's
// typesproto/gointerfaces generated stubs play for erigon-lib/kv - a
// concrete wire format the storage layer decodes without caring who wrote
// it. It is encoded by hand with protowire's low-level tag/varint/bytes
// primitives rather than full code-generated protobuf, since the engine
// never needs reflection, extensions, or cross-language schema evolution -
// just a stable byte format to decode.
package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/erigontech/gink/chain"
	"github.com/erigontech/gink/entrykey"
	"github.com/erigontech/gink/muid"
)

// --- MuidRef ---

// fields numbers for the MuidRef submessage.
const (
	refFieldTimestamp protowire.Number = 1
	refFieldMedallion protowire.Number = 2
	refFieldOffset    protowire.Number = 3
)

func appendMuidRef(b []byte, ref muid.Ref) []byte {
	if ref.Timestamp != 0 {
		b = protowire.AppendTag(b, refFieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ref.Timestamp))
	}
	if ref.Medallion != 0 {
		b = protowire.AppendTag(b, refFieldMedallion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ref.Medallion))
	}
	if ref.Offset != 0 {
		b = protowire.AppendTag(b, refFieldOffset, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ref.Offset))
	}
	return b
}

func consumeMuidRef(b []byte) (muid.Ref, error) {
	var ref muid.Ref
	for len(b) > 0 {
		num, typ, n, err := consumeTag(b)
		if err != nil {
			return ref, err
		}
		b = b[n:]
		switch num {
		case refFieldTimestamp:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return ref, errBadField("MuidRef.timestamp")
			}
			ref.Timestamp = int64(v)
			b = b[m:]
		case refFieldMedallion:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return ref, errBadField("MuidRef.medallion")
			}
			ref.Medallion = int64(v)
			b = b[m:]
		case refFieldOffset:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return ref, errBadField("MuidRef.offset")
			}
			ref.Offset = int32(v)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return ref, errBadField("MuidRef.unknown")
			}
			b = b[m:]
		}
	}
	return ref, nil
}

// --- ContainerDef ---

const (
	containerFieldBehavior protowire.Number = 1
	containerFieldBody     protowire.Number = 2
)

// ContainerDef is the decoded definition blob stored in container-defs:
// a behavior tag plus whatever opaque, behavior-specific bytes the
// higher layer attached (display name, value type hints, ...).
type ContainerDef struct {
	Behavior entrykey.Behavior
	Body     []byte
}

// Marshal encodes a ContainerDef.
func (d ContainerDef) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, containerFieldBehavior, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Behavior))
	if len(d.Body) > 0 {
		b = protowire.AppendTag(b, containerFieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Body)
	}
	return b
}

// UnmarshalContainerDef decodes a ContainerDef.
func UnmarshalContainerDef(raw []byte) (ContainerDef, error) {
	var d ContainerDef
	b := raw
	for len(b) > 0 {
		num, typ, n, err := consumeTag(b)
		if err != nil {
			return d, err
		}
		b = b[n:]
		switch num {
		case containerFieldBehavior:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return d, errBadField("ContainerDef.behavior")
			}
			d.Behavior = entrykey.Behavior(v)
			b = b[m:]
		case containerFieldBody:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return d, errBadField("ContainerDef.body")
			}
			d.Body = append([]byte(nil), v...)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return d, errBadField("ContainerDef.unknown")
			}
			b = b[m:]
		}
	}
	return d, nil
}

// --- Entry ---

const (
	entryFieldContainer  protowire.Number = 1
	entryFieldKey        protowire.Number = 2
	entryFieldEffective  protowire.Number = 3
	entryFieldMove       protowire.Number = 4
	entryFieldExpiry     protowire.Number = 5
	entryFieldPointee    protowire.Number = 6
	entryFieldDeletion   protowire.Number = 7
	entryFieldValue      protowire.Number = 8
	entryFieldHasPointee protowire.Number = 9
)

// Entry is the decoded payload row spec.md's Entry entity describes:
// (container, middle-key, entry-muid, expiry, payload). The middle-key
// itself is not part of Entry - it is derived from Key/Effective/Move by
// the caller according to the container's Behavior (see entrykey package) -
// Entry only carries what the producer put in the change.
type Entry struct {
	Container muid.Ref // the container this entry belongs to; may be relative

	HasKey bool
	Key    []byte // raw DIRECTORY user-key bytes (see entrykey.EncodeUserKey)

	Effective int64     // SEQUENCE: effective time; zero if unused
	HasMove   bool       // SEQUENCE: true if this entry repositions an existing element
	Move      muid.Ref

	Expiry int64 // 0 means no expiry

	HasPointee bool
	Pointee    muid.Ref

	Deletion bool // tombstone flag

	Value []byte // opaque payload; the engine never interprets it
}

// Marshal encodes an Entry.
func (e Entry) Marshal() []byte {
	var b []byte
	if ref := appendMuidRef(nil, e.Container); len(ref) > 0 {
		b = protowire.AppendTag(b, entryFieldContainer, protowire.BytesType)
		b = protowire.AppendBytes(b, ref)
	}
	if e.HasKey {
		b = protowire.AppendTag(b, entryFieldKey, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Key)
	}
	if e.Effective != 0 {
		b = protowire.AppendTag(b, entryFieldEffective, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Effective))
	}
	if e.HasMove {
		ref := appendMuidRef(nil, e.Move)
		b = protowire.AppendTag(b, entryFieldMove, protowire.BytesType)
		b = protowire.AppendBytes(b, ref)
	}
	if e.Expiry != 0 {
		b = protowire.AppendTag(b, entryFieldExpiry, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Expiry))
	}
	if e.HasPointee {
		b = protowire.AppendTag(b, entryFieldHasPointee, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
		ref := appendMuidRef(nil, e.Pointee)
		b = protowire.AppendTag(b, entryFieldPointee, protowire.BytesType)
		b = protowire.AppendBytes(b, ref)
	}
	if e.Deletion {
		b = protowire.AppendTag(b, entryFieldDeletion, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if len(e.Value) > 0 {
		b = protowire.AppendTag(b, entryFieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Value)
	}
	return b
}

// UnmarshalEntry decodes an Entry.
func UnmarshalEntry(raw []byte) (Entry, error) {
	var e Entry
	b := raw
	for len(b) > 0 {
		num, typ, n, err := consumeTag(b)
		if err != nil {
			return e, err
		}
		b = b[n:]
		switch num {
		case entryFieldContainer:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return e, errBadField("Entry.container")
			}
			ref, err := consumeMuidRef(v)
			if err != nil {
				return e, err
			}
			e.Container = ref
			b = b[m:]
		case entryFieldKey:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return e, errBadField("Entry.key")
			}
			e.HasKey = true
			e.Key = append([]byte(nil), v...)
			b = b[m:]
		case entryFieldEffective:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return e, errBadField("Entry.effective")
			}
			e.Effective = int64(v)
			b = b[m:]
		case entryFieldMove:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return e, errBadField("Entry.move")
			}
			ref, err := consumeMuidRef(v)
			if err != nil {
				return e, err
			}
			e.HasMove = true
			e.Move = ref
			b = b[m:]
		case entryFieldExpiry:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return e, errBadField("Entry.expiry")
			}
			e.Expiry = int64(v)
			b = b[m:]
		case entryFieldHasPointee:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return e, errBadField("Entry.has_pointee")
			}
			e.HasPointee = v != 0
			b = b[m:]
		case entryFieldPointee:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return e, errBadField("Entry.pointee")
			}
			ref, err := consumeMuidRef(v)
			if err != nil {
				return e, err
			}
			e.Pointee = ref
			b = b[m:]
		case entryFieldDeletion:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return e, errBadField("Entry.deletion")
			}
			e.Deletion = v != 0
			b = b[m:]
		case entryFieldValue:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return e, errBadField("Entry.value")
			}
			e.Value = append([]byte(nil), v...)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return e, errBadField("Entry.unknown")
			}
			b = b[m:]
		}
	}
	return e, nil
}

// Equivalent compares two entries' payload fields - value, deletion flag,
// pointee target - ignoring identity fields (entry-muid, containing bundle
// context). Used by the reset-diff walk to decide whether the historical
// entry already matches the live one (spec.md §4.7, §9(a)).
func (e Entry) Equivalent(o Entry) bool {
	if e.Deletion != o.Deletion {
		return false
	}
	if e.HasPointee != o.HasPointee {
		return false
	}
	if e.HasPointee && (e.Pointee.Timestamp != o.Pointee.Timestamp || e.Pointee.Medallion != o.Pointee.Medallion || e.Pointee.Offset != o.Pointee.Offset) {
		return false
	}
	return string(e.Value) == string(o.Value)
}

// --- Change ---

const (
	changeFieldOffset       protowire.Number = 1
	changeFieldContainerDef protowire.Number = 2
	changeFieldEntry        protowire.Number = 3
)

// Change is one offset's worth of a bundle: either a container definition
// or an entry, never both (spec.md §4.4 step 3 fails ingestion otherwise).
type Change struct {
	Offset int32

	HasContainer bool
	ContainerDef []byte // raw bytes, stored verbatim to container-defs

	HasEntry bool
	Entry    Entry
}

func (c Change) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, changeFieldOffset, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(c.Offset)))
	if c.HasContainer {
		b = protowire.AppendTag(b, changeFieldContainerDef, protowire.BytesType)
		b = protowire.AppendBytes(b, c.ContainerDef)
	}
	if c.HasEntry {
		b = protowire.AppendTag(b, changeFieldEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, c.Entry.Marshal())
	}
	return b
}

func unmarshalChange(raw []byte) (Change, error) {
	var c Change
	b := raw
	for len(b) > 0 {
		num, typ, n, err := consumeTag(b)
		if err != nil {
			return c, err
		}
		b = b[n:]
		switch num {
		case changeFieldOffset:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return c, errBadField("Change.offset")
			}
			c.Offset = int32(uint32(v))
			b = b[m:]
		case changeFieldContainerDef:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return c, errBadField("Change.container")
			}
			c.HasContainer = true
			c.ContainerDef = append([]byte(nil), v...)
			b = b[m:]
		case changeFieldEntry:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return c, errBadField("Change.entry")
			}
			entry, err := UnmarshalEntry(v)
			if err != nil {
				return c, err
			}
			c.HasEntry = true
			c.Entry = entry
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return c, errBadField("Change.unknown")
			}
			b = b[m:]
		}
	}
	return c, nil
}

// --- Bundle ---

const (
	bundleFieldTimestamp  protowire.Number = 1
	bundleFieldMedallion  protowire.Number = 2
	bundleFieldChainStart protowire.Number = 3
	bundleFieldPriorTime  protowire.Number = 4
	bundleFieldHash       protowire.Number = 5
	bundleFieldChange     protowire.Number = 6
)

// Bundle is the decoded change-set an external producer authored under one
// chain position. Changes is keyed by the change's offset within the
// bundle, matching spec.md §4.4's "For each change in the bundle, keyed by
// its offset."
type Bundle struct {
	Timestamp  int64
	Medallion  int64
	ChainStart int64
	PriorTime  int64
	Hash       chain.Hash
	Changes    map[int32]Change
}

// Info extracts the BundleInfo spec.md §4.4 needs to validate and file this
// bundle.
func (bd Bundle) Info() chain.BundleInfo {
	return chain.BundleInfo{
		Timestamp:  bd.Timestamp,
		Medallion:  bd.Medallion,
		ChainStart: bd.ChainStart,
		PriorTime:  bd.PriorTime,
		Hash:       bd.Hash,
	}
}

// Marshal encodes a Bundle to its wire form.
func (bd Bundle) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, bundleFieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bd.Timestamp))
	b = protowire.AppendTag(b, bundleFieldMedallion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bd.Medallion))
	b = protowire.AppendTag(b, bundleFieldChainStart, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bd.ChainStart))
	b = protowire.AppendTag(b, bundleFieldPriorTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bd.PriorTime))
	b = protowire.AppendTag(b, bundleFieldHash, protowire.BytesType)
	b = protowire.AppendBytes(b, bd.Hash[:])

	offsets := sortedOffsets(bd.Changes)
	for _, off := range offsets {
		cb := bd.Changes[off].marshal()
		b = protowire.AppendTag(b, bundleFieldChange, protowire.BytesType)
		b = protowire.AppendBytes(b, cb)
	}
	return b
}

// Unmarshal decodes a Bundle from its wire form.
func Unmarshal(raw []byte) (Bundle, error) {
	var bd Bundle
	bd.Changes = make(map[int32]Change)
	b := raw
	for len(b) > 0 {
		num, typ, n, err := consumeTag(b)
		if err != nil {
			return bd, err
		}
		b = b[n:]
		switch num {
		case bundleFieldTimestamp:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return bd, errBadField("Bundle.timestamp")
			}
			bd.Timestamp = int64(v)
			b = b[m:]
		case bundleFieldMedallion:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return bd, errBadField("Bundle.medallion")
			}
			bd.Medallion = int64(v)
			b = b[m:]
		case bundleFieldChainStart:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return bd, errBadField("Bundle.chain_start")
			}
			bd.ChainStart = int64(v)
			b = b[m:]
		case bundleFieldPriorTime:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return bd, errBadField("Bundle.prior_time")
			}
			bd.PriorTime = int64(v)
			b = b[m:]
		case bundleFieldHash:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return bd, errBadField("Bundle.hash")
			}
			copy(bd.Hash[:], v)
			b = b[m:]
		case bundleFieldChange:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return bd, errBadField("Bundle.change")
			}
			c, err := unmarshalChange(v)
			if err != nil {
				return bd, err
			}
			bd.Changes[c.Offset] = c
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return bd, errBadField("Bundle.unknown")
			}
			b = b[m:]
		}
	}
	return bd, nil
}

// SortedOffsets returns the bundle's change offsets in ascending order -
// the order AddBundle must apply changes in, since a change may reference a
// container defined by an earlier offset in the same bundle.
func (bd Bundle) SortedOffsets() []int32 {
	return sortedOffsets(bd.Changes)
}

func sortedOffsets(changes map[int32]Change) []int32 {
	out := make([]int32, 0, len(changes))
	for off := range changes {
		out = append(out, off)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func consumeTag(b []byte) (protowire.Number, protowire.Type, int, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return 0, 0, 0, errBadField("tag")
	}
	return num, typ, n, nil
}

func errBadField(field string) error {
	return &malformedError{field: field}
}

type malformedError struct{ field string }

func (e *malformedError) Error() string { return "wire: malformed field " + e.field }
