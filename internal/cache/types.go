package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the tier capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by a closed cache.
	ErrClosed = errors.New("cache closed")
)

// Tier identifies a cache level.
type Tier int

const (
	// TierMemory is the in-process LRU.
	TierMemory Tier = iota
	// TierDisk is the compressed on-disk store.
	TierDisk
)

func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats are the counters of one tier.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// String formats the stats for logs and the status bar.
func (s Stats) String() string {
	return fmt.Sprintf("%d clips, %s of %s, %.0f%% hits",
		s.Items, humanize.IBytes(uint64(s.Size)), humanize.IBytes(uint64(s.Capacity)), s.HitRate()*100)
}

// Config sizes the cache tiers.
type Config struct {
	MemoryCapacity   int64         `mapstructure:"memory_capacity" yaml:"memory_capacity"`
	DiskCapacity     int64         `mapstructure:"disk_capacity" yaml:"disk_capacity"`
	DiskPath         string        `mapstructure:"disk_path" yaml:"disk_path"`
	CompressionLevel int           `mapstructure:"compression_level" yaml:"compression_level"`
	TTL              time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultConfig returns a small memory tier and a week long disk tier.
// DiskPath is left empty; the caller decides where clips live.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 << 20,
		DiskCapacity:     256 << 20,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Cache is a byte store keyed by string.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string)
	Stats() Stats
}

// Key derives the cache key of a spoken text in a voice. Whitespace is
// normalized so re-flowed text hits the same entry.
func Key(text, voice string) string {
	norm := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(voice + "\x00" + norm))
	return hex.EncodeToString(sum[:16])
}
