package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "clips.index"
	clipExt   = ".pcm.zst"
	// Clips below this size are stored raw.
	minCompressSize = 1024
)

// DiskCache stores clips as files under a directory, zstd compressed when it
// pays off. An index file keeps the metadata across restarts.
type DiskCache struct {
	mu       sync.Mutex
	dir      string
	capacity int64
	size     int64
	index    map[string]*diskEntry
	stats    Stats
	closed   bool

	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

type diskEntry struct {
	Key        string
	File       string
	Size       int64 // on disk
	Raw        int64 // decoded
	Stored     time.Time
	LastAccess time.Time
	Compressed bool
}

// NewDiskCache opens or creates the cache in dir. level is the zstd level;
// zero disables compression. A missing or unreadable index starts empty.
func NewDiskCache(dir string, capacity int64, level int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		now:      time.Now,
	}
	if level > 0 {
		var err error
		dc.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		dc.dec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
	}

	if err := dc.load(); err != nil {
		dc.index = make(map[string]*diskEntry)
	}
	for _, e := range dc.index {
		dc.size += e.Size
	}
	return dc, nil
}

// Get reads a clip. Entries whose file vanished or fails to decode are
// dropped and reported as misses.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	e, ok := dc.index[key]
	if !ok || dc.closed {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(e.File)
	if err == nil && e.Compressed {
		if dc.dec == nil {
			err = errors.New("compressed entry without decoder")
		} else {
			data, err = dc.dec.DecodeAll(data, nil)
		}
	}
	if err != nil {
		dc.drop(e)
		dc.stats.Misses++
		return nil, false
	}

	e.LastAccess = dc.now()
	dc.stats.Hits++
	return data, true
}

// Put writes a clip, evicting the least recently read entries to make room.
func (dc *DiskCache) Put(key string, value []byte) error {
	data, compressed := value, false
	if dc.enc != nil && len(value) >= minCompressSize {
		if z := dc.enc.EncodeAll(value, nil); len(z) < len(value) {
			data, compressed = z, true
		}
	}
	n := int64(len(data))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.closed {
		return ErrClosed
	}

	if old, ok := dc.index[key]; ok {
		dc.drop(old)
	}
	dc.evict(dc.capacity - n)

	file := filepath.Join(dc.dir, key+clipExt)
	if err := writeAtomic(file, data); err != nil {
		return fmt.Errorf("write clip: %w", err)
	}
	now := dc.now()
	dc.index[key] = &diskEntry{
		Key:        key,
		File:       file,
		Size:       n,
		Raw:        int64(len(value)),
		Stored:     now,
		LastAccess: now,
		Compressed: compressed,
	}
	dc.size += n
	return nil
}

// Delete removes key and its file.
func (dc *DiskCache) Delete(key string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if e, ok := dc.index[key]; ok {
		dc.drop(e)
	}
}

// RemoveOlderThan drops entries stored before cutoff and returns how many.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for _, e := range dc.index {
		if e.Stored.Before(cutoff) {
			dc.drop(e)
			removed++
		}
	}
	return removed
}

// Stats returns the tier counters. Size is the size on disk.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	s := dc.stats
	s.Capacity = dc.capacity
	s.Size = dc.size
	s.Items = len(dc.index)
	return s
}

// Close writes the index. Later writes fail with ErrClosed.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.closed {
		return nil
	}
	dc.closed = true
	if dc.dec != nil {
		dc.dec.Close()
	}
	return dc.save()
}

// evict drops least recently read entries until size <= limit.
func (dc *DiskCache) evict(limit int64) {
	if dc.size <= limit {
		return
	}
	entries := make([]*diskEntry, 0, len(dc.index))
	for _, e := range dc.index {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *diskEntry) int {
		return a.LastAccess.Compare(b.LastAccess)
	})
	for _, e := range entries {
		if dc.size <= limit {
			break
		}
		dc.drop(e)
		dc.stats.Evictions++
	}
}

func (dc *DiskCache) drop(e *diskEntry) {
	_ = os.Remove(e.File)
	delete(dc.index, e.Key)
	dc.size -= e.Size
}

func (dc *DiskCache) load() error {
	f, err := os.Open(filepath.Join(dc.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck
	return gob.NewDecoder(f).Decode(&dc.index)
}

func (dc *DiskCache) save() error {
	path := filepath.Join(dc.dir, indexFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write cache index: %w", err)
	}
	return os.Rename(tmp, path)
}

// writeAtomic writes data to a temporary file and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
