package backend

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"sync"
	"unicode"
)

// Near-duplicate defaults.
const (
	DefaultDedupWindow   = 16
	DefaultDedupDistance = 3
)

// SimHash returns the 64-bit similarity hash of s over its lower-cased word
// tokens. Similar texts have hashes with a small Hamming distance.
func SimHash(s string) uint64 {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return 0
	}

	var v [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		for i := range 64 {
			if sum&(1<<i) != 0 {
				v[i]++
			} else {
				v[i]--
			}
		}
	}

	var out uint64
	for i := range 64 {
		if v[i] > 0 {
			out |= 1 << i
		}
	}
	return out
}

// Dedup remembers the hashes of recent story ideas.
type Dedup struct {
	mu       sync.Mutex
	recent   []uint64
	window   int
	distance int
}

// NewDedup remembers up to window hashes and treats hashes at most distance
// bits apart as duplicates.
func NewDedup(window, distance int) *Dedup {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if distance < 0 {
		distance = DefaultDedupDistance
	}
	return &Dedup{window: window, distance: distance}
}

// Seen reports whether s is close to a recent entry. Unseen entries are
// remembered.
func (d *Dedup) Seen(s string) bool {
	h := SimHash(s)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.recent {
		if bits.OnesCount64(r^h) <= d.distance {
			return true
		}
	}
	d.recent = append(d.recent, h)
	if len(d.recent) > d.window {
		d.recent = d.recent[len(d.recent)-d.window:]
	}
	return false
}

// Len returns the number of remembered hashes.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.recent)
}
