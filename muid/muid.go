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

// Package muid implements the 96-bit global address (timestamp, medallion,
// offset) used throughout the store, its packed 16-byte form, and the
// componentwise-inverted form used to realise reverse-chronological
// ordering via forward seeks.
package muid

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Byte budgets, expressed in hex digits to match the on-disk string form:
// 14 for the timestamp, 13 for the medallion, 5 for the offset, 32 total
// (16 bytes).
const (
	timestampHexDigits = 14
	medallionHexDigits = 13
	offsetHexDigits    = 5

	timestampBits = timestampHexDigits * 4 // 56
	medallionBits = medallionHexDigits * 4 // 52
	offsetBits    = offsetHexDigits * 4    // 20

	// Size is the packed byte length of a Muid.
	Size = (timestampBits + medallionBits + offsetBits) / 8

	// StringLen is the length of the canonical "TTT...-MMM...-OOO..." form.
	StringLen = timestampHexDigits + 1 + medallionHexDigits + 1 + offsetHexDigits
)

var (
	timestampMod = new(big.Int).Lsh(big.NewInt(1), timestampBits)
	medallionMod = new(big.Int).Lsh(big.NewInt(1), medallionBits)
	offsetMod    = new(big.Int).Lsh(big.NewInt(1), offsetBits)

	timestampHalf = new(big.Int).Rsh(timestampMod, 1)
	medallionHalf = new(big.Int).Rsh(medallionMod, 1)
	offsetHalf    = new(big.Int).Rsh(offsetMod, 1)
)

// Muid is a global address (timestamp, medallion, offset). A zero field
// means "inherit the corresponding field from the containing bundle" when
// the Muid is used as a bundle-local Ref; a fully resolved Muid must have
// every field non-zero.
type Muid struct {
	Timestamp int64
	Medallion int64
	Offset    int32
}

// Zero is the muid whose every field is zero; used as the all-ones sentinel
// once inverted (see entrykey) and as "no value" in contexts that accept it.
var Zero = Muid{}

// IsZero reports whether every field of m is zero.
func (m Muid) IsZero() bool {
	return m.Timestamp == 0 && m.Medallion == 0 && m.Offset == 0
}

// Invert returns the componentwise bitwise complement of m. Inversion is
// self-inverse: Invert(Invert(m)) == m. For legal muids u < v (compared
// componentwise as the encoded triple), Bytes(Invert(u)) sorts after
// Bytes(Invert(v)) in unsigned lexicographic order - this is what lets a
// single forward seek realise "most recent entry not newer than T".
func (m Muid) Invert() Muid {
	return Muid{
		Timestamp: ^m.Timestamp,
		Medallion: ^m.Medallion,
		Offset:    ^m.Offset,
	}
}

// Bytes packs m into its canonical 16-byte form: the timestamp occupies the
// top 56 bits, the medallion the next 52, the offset the low 20 - laid out
// high to low so unsigned byte comparison matches numeric comparison of the
// (timestamp, medallion, offset) triple (each field reduced into its
// unsigned modulus first, matching FromBytes's designification).
func (m Muid) Bytes() [Size]byte {
	ts := normalize(m.Timestamp, timestampMod)
	md := normalize(m.Medallion, medallionMod)
	off := normalize(int64(m.Offset), offsetMod)

	n := new(big.Int).Lsh(ts, medallionBits+offsetBits)
	n.Or(n, new(big.Int).Lsh(md, offsetBits))
	n.Or(n, off)

	var out [Size]byte
	n.FillBytes(out[:])
	return out
}

// FromBytes reverses Bytes. A field whose unsigned value is more than half
// of its modulus is interpreted as negative (x - modulus), mirroring Bytes's
// reduction into the unsigned modulus.
func FromBytes(data []byte) (Muid, error) {
	if len(data) != Size {
		return Muid{}, errors.Errorf("muid: want %d bytes, got %d", Size, len(data))
	}
	n := new(big.Int).SetBytes(data)

	off := new(big.Int).And(n, new(big.Int).Sub(offsetMod, big.NewInt(1)))
	md := new(big.Int).Rsh(n, offsetBits)
	md.And(md, new(big.Int).Sub(medallionMod, big.NewInt(1)))
	ts := new(big.Int).Rsh(n, offsetBits+medallionBits)
	ts.And(ts, new(big.Int).Sub(timestampMod, big.NewInt(1)))

	return Muid{
		Timestamp: designify(ts, timestampMod, timestampHalf),
		Medallion: designify(md, medallionMod, medallionHalf),
		Offset:    int32(designify(off, offsetMod, offsetHalf)),
	}, nil
}

func normalize(x int64, mod *big.Int) *big.Int {
	return new(big.Int).Mod(big.NewInt(x), mod)
}

func designify(x, mod, half *big.Int) int64 {
	if x.Cmp(half) > 0 {
		return new(big.Int).Sub(x, mod).Int64()
	}
	return x.Int64()
}

// String renders the canonical 34-character "TTTTTTTTTTTTTT-MMMMMMMMMMMMM-OOOOO"
// form: three uppercase-hex groups, each field reduced into its unsigned
// modulus and zero-padded to its digit budget.
func (m Muid) String() string {
	ts := normalize(m.Timestamp, timestampMod)
	md := normalize(m.Medallion, medallionMod)
	off := normalize(int64(m.Offset), offsetMod)
	return fmt.Sprintf("%s-%s-%s",
		padHex(ts, timestampHexDigits),
		padHex(md, medallionHexDigits),
		padHex(off, offsetHexDigits))
}

func padHex(x *big.Int, digits int) string {
	s := strings.ToUpper(x.Text(16))
	if len(s) < digits {
		s = strings.Repeat("0", digits-len(s)) + s
	}
	return s
}

// FromString parses the canonical 34-character form produced by String.
func FromString(s string) (Muid, error) {
	if len(s) != StringLen {
		return Muid{}, errors.Errorf("muid: want %d-character string, got %d", StringLen, len(s))
	}
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return Muid{}, errors.Errorf("muid: malformed string %q", s)
	}
	ts, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil {
		return Muid{}, errors.Wrapf(err, "muid: bad timestamp field %q", parts[0])
	}
	md, err := strconv.ParseInt(parts[1], 16, 64)
	if err != nil {
		return Muid{}, errors.Wrapf(err, "muid: bad medallion field %q", parts[1])
	}
	off, err := strconv.ParseInt(parts[2], 16, 32)
	if err != nil {
		return Muid{}, errors.Wrapf(err, "muid: bad offset field %q", parts[2])
	}
	return Muid{Timestamp: ts, Medallion: md, Offset: int32(off)}, nil
}

// Ref is a bundle-local reference to a Muid: a zero Timestamp or Medallion
// means "inherit from the containing bundle". It is never persisted as-is -
// Create resolves it against a Context immediately.
type Ref struct {
	Timestamp int64
	Medallion int64
	Offset    int32
}

// Context supplies the fields a Ref inherits - normally a bundle's own
// BundleInfo.
type Context interface {
	ContextTimestamp() int64
	ContextMedallion() int64
}

// Create materialises a Muid from a bundle-local Ref against ctx, optionally
// overriding the offset (used when the offset is the change's position
// within the bundle rather than part of the wire reference). It returns an
// error - the engine's CorruptBundle condition - if any field is still zero
// after resolution.
func Create(ref Ref, ctx Context, offset int32) (Muid, error) {
	ts := ref.Timestamp
	if ts == 0 {
		ts = ctx.ContextTimestamp()
	}
	md := ref.Medallion
	if md == 0 {
		md = ctx.ContextMedallion()
	}
	off := offset
	if off == 0 {
		off = ref.Offset
	}
	if ts == 0 || md == 0 || off == 0 {
		return Muid{}, errors.Errorf("muid: unresolved reference %+v (offset=%d)", ref, offset)
	}
	return Muid{Timestamp: ts, Medallion: md, Offset: off}, nil
}

// ContextTimestamp and ContextMedallion let a resolved Muid serve as the
// Context for resolving a Ref carried inside the entry it addresses: an
// entry-muid's Timestamp and Medallion always equal its producing bundle's,
// since Create only ever overrides Offset when deriving an entry-muid (see
// engine.AddBundle) - so the entry-muid doubles as that bundle's context
// without the engine needing to store the BundleInfo alongside every entry.
func (m Muid) ContextTimestamp() int64 { return m.Timestamp }
func (m Muid) ContextMedallion() int64 { return m.Medallion }

// Less orders muids by (Timestamp, Medallion, Offset), the same order their
// packed bytes sort in for legal (non-overflowing) values.
func (m Muid) Less(o Muid) bool {
	if m.Timestamp != o.Timestamp {
		return m.Timestamp < o.Timestamp
	}
	if m.Medallion != o.Medallion {
		return m.Medallion < o.Medallion
	}
	return m.Offset < o.Offset
}
