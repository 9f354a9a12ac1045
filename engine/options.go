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
	"github.com/c2h5oh/datasize"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Options configures Open.
type Options struct {
	// Path is the backing file Open passes to the MDBX driver.
	Path string
	// Reset, if true, truncates the five tables after opening without
	// deleting the file itself (spec.md §6).
	Reset bool
	// MapSize bounds the MDBX map; defaults to 1GB when zero.
	MapSize datasize.ByteSize
	// FS is used only for the parent-directory creation Open does before
	// handing the path to MDBX; the MDBX driver itself always works on the
	// real filesystem. Defaults to afero.NewOsFs().
	FS afero.Fs
	// Logger receives structured engine events; defaults to zap.NewNop().
	Logger *zap.Logger
}

func (o Options) fs() afero.Fs {
	if o.FS != nil {
		return o.FS
	}
	return afero.NewOsFs()
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o Options) mapSize() datasize.ByteSize {
	if o.MapSize != 0 {
		return o.MapSize
	}
	return 1 * datasize.GB
}
