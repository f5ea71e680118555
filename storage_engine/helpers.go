package storageengine

import (
	"EmberDB/storage_engine/bufferpool"
	"EmberDB/types"
)

/*
This file holds helper functions for the storage engine
*/

// Stats is a point-in-time snapshot of the engine's state, intended for
// tooling and debugging rather than hot-path use: Keys walks the whole
// tree.
type Stats struct {
	Root       types.PageID
	TreeHeight int
	Keys       int
	Pool       bufferpool.BufferPoolStats
}

// GetStats collects engine statistics. Fails on a closed engine or when
// the tree cannot be walked.
func (e *Engine) GetStats() (Stats, error) {
	if e.closed {
		return Stats{}, types.ErrClosed
	}
	height, err := e.tree.Height()
	if err != nil {
		return Stats{}, err
	}
	keys, err := e.tree.Count()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Root:       e.tree.Root(),
		TreeHeight: height,
		Keys:       keys,
		Pool:       e.pool.GetStats(),
	}, nil
}

// PageSize returns the base page size the store was created with.
func (e *Engine) PageSize() int {
	return e.opts.PageSize
}
