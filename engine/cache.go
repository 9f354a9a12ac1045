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
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/erigontech/gink/kv"
	"github.com/erigontech/gink/muid"
	"github.com/erigontech/gink/wire"
)

// containerDefCacheSize bounds the decoded-container-definition cache that
// ingestion consults. Container-defs are
// write-once (spec.md §3's lifecycle rule), so cached entries never go
// stale within an engine's lifetime.
const containerDefCacheSize = 4096

func newContainerDefCache() (*lru.Cache[muid.Muid, wire.ContainerDef], error) {
	return lru.New[muid.Muid, wire.ContainerDef](containerDefCacheSize)
}

// containerDef resolves m's definition, consulting the cache before the
// container-defs table.
func (e *Engine) containerDef(tx kv.Tx, m muid.Muid) (wire.ContainerDef, error) {
	if d, ok := e.cache.Get(m); ok {
		return d, nil
	}
	mb := m.Bytes()
	raw, err := tx.GetOne(kv.ContainerDefs, mb[:])
	if err != nil {
		return wire.ContainerDef{}, backend(err)
	}
	if raw == nil {
		return wire.ContainerDef{}, corruptf("unknown container %s", m)
	}
	d, err := wire.UnmarshalContainerDef(raw)
	if err != nil {
		return wire.ContainerDef{}, corrupt(err, "decode container definition")
	}
	e.cache.Add(m, d)
	return d, nil
}
