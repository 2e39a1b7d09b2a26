package dedup

import (
	"crypto/md5" //nolint:gosec // dedup key, not a security control
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Index is a set of keys where the first insertion of a key wins.
// The zero value is not usable; create one with New.
type Index struct {
	mu   sync.Mutex
	seen map[string]struct{}

	// rejected counts TryInsert calls that hit an existing key.
	rejected int
}

// New creates an empty Index.
func New() *Index {
	return &Index{seen: make(map[string]struct{})}
}

// TryInsert adds key to the index.
// It returns true if the key was not present (the caller keeps the record)
// and false if it is a duplicate (the caller discards it).
func (i *Index) TryInsert(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.seen[key]; ok {
		i.rejected++
		return false
	}
	i.seen[key] = struct{}{}
	return true
}

// Contains reports whether key has been inserted.
func (i *Index) Contains(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, ok := i.seen[key]
	return ok
}

// Len returns the number of unique keys.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return len(i.seen)
}

// Rejected returns how many duplicate insertions were refused.
func (i *Index) Rejected() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.rejected
}

// POIKey returns the merge key for a venue: the hex MD5 of
// name + "_" + address after trimming and Unicode case folding, so the same
// venue reported with different letter case by two sources collapses.
func POIKey(name, address string) string {
	folder := cases.Fold()
	key := folder.String(strings.TrimSpace(name)) + "_" + folder.String(strings.TrimSpace(address))
	sum := md5.Sum([]byte(key)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}
