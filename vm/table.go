package vm

import "go.uber.org/zap"

// Table is an open-addressing hash table keyed by interned strings,
// mirroring the layout of a clox-style table: linear probing, tombstones
// (a nil key paired with a true boolean value) left behind by deletes so
// probe chains broken by a removal still resolve, and grow-on-load-factor
// rehashing. It backs both the VM's globals and its string-intern pool.
type Table struct {
	count   int // live entries + tombstones
	entries []entry
	log     *zap.Logger
}

type entry struct {
	key   *ObjString
	value Value
}

const tableMaxLoad = 0.75

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// SetLogger attaches a logger used to report grow/rehash events. A table
// may keep a nil logger for its entire lifetime, since grow() only logs
// when log is non-nil.
func (t *Table) SetLogger(log *zap.Logger) {
	t.log = log
}

// Get looks up key, returning its value and whether it was present.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if len(t.entries) == 0 {
		return Nil, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return Nil, false
	}
	return e.value, true
}

// Set stores value under key, returning true if this created a brand new
// entry (as opposed to overwriting an existing one).
func (t *Table) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}

	e := findEntry(t.entries, key)
	isNew := e.key == nil
	if isNew && e.value.IsNil() {
		// Only a genuinely empty slot grows count; reusing a tombstone
		// (key nil, value true) does not, since count already includes it.
		t.count++
	}

	e.key = key
	e.value = value
	return isNew
}

// Delete removes key, leaving a tombstone behind so later probes that
// passed through this slot still find entries stored after it.
func (t *Table) Delete(key *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = NewBool(true)
	return true
}

// FindString looks up an interned string by its raw content and hash,
// used by the compiler/VM to dedupe string allocation before a *ObjString
// even exists to use as a table key.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) & mask
	}
}

// RemoveWhite drops every entry whose key object did not survive the most
// recent mark phase. Used to purge dead interned strings out of the
// string pool after a collection, since the pool itself is not a GC root.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.Marked {
			t.Delete(e.key)
		}
	}
}

// AddAll bulk-copies every live entry of t into dst through dst.Set.
// grow() does not use it; it reinserts entries into the new array itself.
func (t *Table) AddAll(dst *Table) {
	for _, e := range t.entries {
		if e.key != nil {
			dst.Set(e.key, e.value)
		}
	}
}

// Len reports the number of live (non-tombstone) entries.
func (t *Table) Len() int {
	n := 0
	for _, e := range t.entries {
		if e.key != nil {
			n++
		}
	}
	return n
}

// Each calls fn for every live entry. Used by the collector to mark keys
// and values reachable through the globals table.
func (t *Table) Each(fn func(key *ObjString, value Value)) {
	for _, e := range t.entries {
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

func (t *Table) grow() {
	oldCap := len(t.entries)
	newCap := 8
	if oldCap > 0 {
		newCap = oldCap * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for _, e := range old {
		if e.key != nil {
			ne := findEntry(t.entries, e.key)
			ne.key = e.key
			ne.value = e.value
			t.count++
		}
	}
	if t.log != nil {
		t.log.Debug("table rehash",
			zap.Int("oldCap", oldCap),
			zap.Int("newCap", newCap),
			zap.Int("liveEntries", t.count),
		)
	}
}

// findEntry performs linear probing starting at key's hash bucket,
// stopping at either a matching key or the first usable empty/tombstone
// slot it passes (remembering the earliest tombstone so inserts reuse
// it instead of growing the probe chain further).
func findEntry(entries []entry, key *ObjString) *entry {
	mask := uint32(len(entries) - 1)
	index := key.Hash & mask
	var tombstone *entry

	for {
		e := &entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) & mask
	}
}
