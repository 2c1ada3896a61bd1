// Package track maintains the live-allocation registry behind leak
// tracking: every outstanding block keyed by base address, with stable
// IDs handed out in allocation order.
package track

import (
	"math"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Entry describes one live allocation.
type Entry struct {
	ID       uint32
	Type     string
	ElemSize int
	Count    int
	Size     int
	Since    time.Time
}

// Tracker records live blocks keyed by base address. IDs are never
// recycled; the live set is kept in a Roaring Bitmap so ordered iteration
// stays cheap even with millions of outstanding blocks.
//
// All methods are safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	live   *roaring.Bitmap
	byAddr map[uintptr]Entry
	byID   map[uint32]uintptr
	nextID uint32
	full   bool // ID space exhausted
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		live:   roaring.New(),
		byAddr: make(map[uintptr]Entry),
		byID:   make(map[uint32]uintptr),
		nextID: 1,
	}
}

// Register records a fresh block. It reports false when the ID space is
// exhausted or base is already registered; the block stays usable either
// way, it is just invisible to Live.
func (t *Tracker) Register(base uintptr, typ string, elemSize, count, size int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.full {
		return false
	}
	if _, ok := t.byAddr[base]; ok {
		return false
	}

	id := t.nextID
	if id == math.MaxUint32 {
		t.full = true
	}
	t.nextID++

	t.live.Add(id)
	t.byAddr[base] = Entry{
		ID:       id,
		Type:     typ,
		ElemSize: elemSize,
		Count:    count,
		Size:     size,
		Since:    time.Now(),
	}
	t.byID[id] = base

	return true
}

// Unregister removes the block at base, reporting whether it was known.
func (t *Tracker) Unregister(base uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byAddr[base]
	if !ok {
		return false
	}

	delete(t.byAddr, base)
	delete(t.byID, e.ID)
	t.live.Remove(e.ID)

	return true
}

// Move rebinds a reallocated block to its new address, keeping its ID,
// type and allocation time. It reports false when oldBase is unknown.
// oldBase == newBase is valid and updates the entry in place.
func (t *Tracker) Move(oldBase, newBase uintptr, count, size int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byAddr[oldBase]
	if !ok {
		return false
	}

	e.Count = count
	e.Size = size
	if oldBase != newBase {
		delete(t.byAddr, oldBase)
	}
	t.byAddr[newBase] = e
	t.byID[e.ID] = newBase

	return true
}

// Live returns the surviving entries in allocation order.
func (t *Tracker) Live() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]Entry, 0, t.live.GetCardinality())
	it := t.live.Iterator()
	for it.HasNext() {
		base, ok := t.byID[it.Next()]
		if !ok {
			continue
		}
		entries = append(entries, t.byAddr[base])
	}

	return entries
}

// Count returns the number of live entries.
func (t *Tracker) Count() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.live.GetCardinality()
}
