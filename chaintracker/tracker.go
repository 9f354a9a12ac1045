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

// Package chaintracker holds the in-memory summary of "what chain heads
// does this instance have" that a sync/gossip peer needs: one entry per
// chain, giving the timestamp of its current head. Sorted iteration is
// needed wherever a peer wants the chains ordered by medallion for a
// deterministic diff, so the set is kept in a github.com/google/btree
// b-tree rather than a plain map - the same structure erigon-lib reaches
// for when it needs ordered in-memory indices alongside the on-disk ones.
package chaintracker

import (
	"github.com/google/btree"

	"github.com/erigontech/gink/chain"
)

type item struct {
	chain chain.Chain
	head  chain.BundleInfo
}

func (a item) Less(b btree.Item) bool {
	o := b.(item)
	if a.chain.Medallion != o.chain.Medallion {
		return a.chain.Medallion < o.chain.Medallion
	}
	return a.chain.ChainStart < o.chain.ChainStart
}

// Tracker is a mutable summary of known chain heads, grounded on
// original_source/python/gink/impl/lmdb_store.py's get_chain_tracker,
// which builds this same per-chain head summary by replaying chain-infos.
type Tracker struct {
	tree *btree.BTree
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{tree: btree.New(32)}
}

// MarkAsHaving records that this instance has bi as (at least) its view of
// bi's chain, overwriting any older head recorded for that chain.
func (t *Tracker) MarkAsHaving(bi chain.BundleInfo) {
	key := item{chain: bi.Chain()}
	cur, ok := t.tree.Get(key).(item)
	if !ok || cur.head.Less(bi) {
		t.tree.ReplaceOrInsert(item{chain: bi.Chain(), head: bi})
	}
}

// HasSeen reports whether this tracker's recorded head for bi's chain is at
// least as new as bi - i.e. whether ingesting bi would be a duplicate.
func (t *Tracker) HasSeen(bi chain.BundleInfo) bool {
	cur, ok := t.HeadOf(bi.Chain())
	if !ok {
		return false
	}
	return !cur.Less(bi)
}

// HeadOf returns the recorded head bundle for c, if any.
func (t *Tracker) HeadOf(c chain.Chain) (chain.BundleInfo, bool) {
	v := t.tree.Get(item{chain: c})
	if v == nil {
		return chain.BundleInfo{}, false
	}
	return v.(item).head, true
}

// Len returns the number of distinct chains tracked.
func (t *Tracker) Len() int {
	return t.tree.Len()
}

// Each calls f for every tracked chain's head, in ascending
// (medallion, chain-start) order, stopping early if f returns false.
func (t *Tracker) Each(f func(chain.BundleInfo) bool) {
	t.tree.Ascend(func(i btree.Item) bool {
		return f(i.(item).head)
	})
}
