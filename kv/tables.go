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

package kv

const (
	// Bundles stores every accepted bundle, keyed by its canonical
	// BundleInfo encoding (chain.BundleInfo.Bytes): timestamp, medallion,
	// chain-start, prior-time, hash. Value is the raw wire-encoded bundle.
	Bundles = "Bundles"

	// ChainInfos stores, per chain, the BundleInfo of its current head.
	// key - medallion(be64) || chain-start(be64) (chain.Chain.Bytes)
	// value - chain.BundleInfo.Bytes of the head bundle
	ChainInfos = "ChainInfos"

	// ClaimedChains records which chains this instance is the sole writer
	// for (spec.md's chain-claiming concern, needed so a restarted process
	// doesn't fork its own chain by starting a new one).
	// key - medallion(be64)
	// value - chain-start(be64)
	ClaimedChains = "ClaimedChains"

	// Entries stores every entry ever ingested, keyed by the composite
	// entrykey layout (container-muid || middle-key || inv(entry-muid) ||
	// expiry). Value is the wire-encoded Entry.
	Entries = "Entries"

	// ContainerDefs stores every container's definition, keyed by the
	// container's own muid bytes. Value is the wire-encoded ContainerDef.
	ContainerDefs = "ContainerDefs"
)

// Tables is the full schema the engine opens its database with, mirroring
// erigon-lib/kv's pattern of declaring every DBI's TableCfg up front at
// environment-open time.
var Tables = TableCfg{
	Bundles:       0,
	ChainInfos:    0,
	ClaimedChains: 0,
	Entries:       0,
	ContainerDefs: 0,
}
