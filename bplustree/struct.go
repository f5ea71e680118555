// Structure of the tree
/*
Tree
 ├── Index Page (boundary keys + child page ids)
 │      └── Child Index Pages ...
 │             └── Leaf Pages (keys + values)

- keys: sorted ascending order
- index pages: key i is the low boundary of child i
- every page carries its own [lo, hi) boundary keys
- all leaf pages at same depth

Pages live in the buffer pool and are only touched through pinned
references; the tree itself holds nothing but the root page id.
*/
package bplus

import (
	"go.uber.org/zap"

	"EmberDB/storage_engine/bufferpool"
	diskmanager "EmberDB/storage_engine/disk_manager"
	"EmberDB/storage_engine/page"
	walmanager "EmberDB/storage_engine/wal_manager"
	"EmberDB/types"
)

type BPlusTree struct {
	root  types.PageID
	codec *page.Codec
	cache *bufferpool.BufferPool
	wal   *walmanager.WALManager
	disk  *diskmanager.DiskManager
	log   *zap.Logger
}

// pathEntry records one index page crossed on the way to a leaf: the
// page and which child was descended into.
type pathEntry struct {
	pid types.PageID
	idx int
}

// Root returns the current root page id.
func (t *BPlusTree) Root() types.PageID { return t.root }
