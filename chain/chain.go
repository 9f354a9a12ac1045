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

// Package chain defines Chain and BundleInfo, the canonical identifiers a
// bundle is addressed by, plus their fixed-width byte encodings used as
// table keys.
package chain

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Chain identifies a producer's append-only log: the pair (medallion,
// chain-start).
type Chain struct {
	Medallion  int64
	ChainStart int64
}

// KeySize is the byte length of Chain.Bytes: medallion || chain-start, both
// big-endian 64-bit, matching the chain-infos table key layout.
const KeySize = 16

// Bytes packs the chain as medallion(be64) || chain-start(be64), the
// chain-infos table key.
func (c Chain) Bytes() [KeySize]byte {
	var out [KeySize]byte
	binary.BigEndian.PutUint64(out[0:8], uint64(c.Medallion))
	binary.BigEndian.PutUint64(out[8:16], uint64(c.ChainStart))
	return out
}

// ChainFromBytes reverses Chain.Bytes.
func ChainFromBytes(b []byte) (Chain, error) {
	if len(b) != KeySize {
		return Chain{}, errors.Errorf("chain: want %d bytes, got %d", KeySize, len(b))
	}
	return Chain{
		Medallion:  int64(binary.BigEndian.Uint64(b[0:8])),
		ChainStart: int64(binary.BigEndian.Uint64(b[8:16])),
	}, nil
}

// HashSize is the byte length of a BundleInfo's content hash. Producers are
// free to use any 32-byte digest (e.g. sha256 or blake2b-256); the engine
// never interprets it, only compares and stores it.
const HashSize = 32

// Hash is an opaque 32-byte content digest supplied by the bundle producer.
type Hash [HashSize]byte

// BundleInfo is the canonical metadata of a bundle: the primary key of the
// bundles table and the value stored per chain in chain-infos.
//
// PriorTime is 0 iff this is the chain's first bundle, in which case
// Timestamp must equal ChainStart.
type BundleInfo struct {
	Timestamp  int64
	Medallion  int64
	ChainStart int64
	PriorTime  int64
	Hash       Hash
}

// Chain returns the (medallion, chain-start) pair this bundle belongs to.
func (bi BundleInfo) Chain() Chain {
	return Chain{Medallion: bi.Medallion, ChainStart: bi.ChainStart}
}

// ContextTimestamp and ContextMedallion let a BundleInfo serve directly as a
// muid.Context when resolving bundle-local Refs.
func (bi BundleInfo) ContextTimestamp() int64 { return bi.Timestamp }
func (bi BundleInfo) ContextMedallion() int64 { return bi.Medallion }

// IsChainStart reports whether bi is the first bundle on its chain.
func (bi BundleInfo) IsChainStart() bool {
	return bi.PriorTime == 0
}

// InfoSize is the byte length of BundleInfo.Bytes: four big-endian 64-bit
// fields followed by the hash, in an order that sorts the bundles table by
// (timestamp, medallion, chain-start, prior-time) - the order spec.md
// requires iteration to replay in causal-compatible order.
const InfoSize = 8*4 + HashSize

// Bytes packs bi into its canonical form, used as the bundles table key and
// the chain-infos table value.
func (bi BundleInfo) Bytes() [InfoSize]byte {
	var out [InfoSize]byte
	binary.BigEndian.PutUint64(out[0:8], uint64(bi.Timestamp))
	binary.BigEndian.PutUint64(out[8:16], uint64(bi.Medallion))
	binary.BigEndian.PutUint64(out[16:24], uint64(bi.ChainStart))
	binary.BigEndian.PutUint64(out[24:32], uint64(bi.PriorTime))
	copy(out[32:32+HashSize], bi.Hash[:])
	return out
}

// InfoFromBytes reverses BundleInfo.Bytes.
func InfoFromBytes(b []byte) (BundleInfo, error) {
	if len(b) != InfoSize {
		return BundleInfo{}, errors.Errorf("chain: want %d bytes, got %d", InfoSize, len(b))
	}
	var bi BundleInfo
	bi.Timestamp = int64(binary.BigEndian.Uint64(b[0:8]))
	bi.Medallion = int64(binary.BigEndian.Uint64(b[8:16]))
	bi.ChainStart = int64(binary.BigEndian.Uint64(b[16:24]))
	bi.PriorTime = int64(binary.BigEndian.Uint64(b[24:32]))
	copy(bi.Hash[:], b[32:32+HashSize])
	return bi, nil
}

// Less orders BundleInfo by (Timestamp, Medallion, ChainStart, PriorTime),
// the same order Bytes sorts in - mirrored from the original Python
// implementation's NamedTuple-based tuple ordering (tuples.py).
func (bi BundleInfo) Less(o BundleInfo) bool {
	if bi.Timestamp != o.Timestamp {
		return bi.Timestamp < o.Timestamp
	}
	if bi.Medallion != o.Medallion {
		return bi.Medallion < o.Medallion
	}
	if bi.ChainStart != o.ChainStart {
		return bi.ChainStart < o.ChainStart
	}
	return bi.PriorTime < o.PriorTime
}
