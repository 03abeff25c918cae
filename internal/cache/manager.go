package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager layers the memory tier over the disk tier. Reads fall through to
// disk and promote hits into memory; writes land in memory at once and on
// disk in the background.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache // nil when no disk path is configured
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	promotions int64
	cleanups   int64
	closed     bool

	writes sync.WaitGroup
	stop   chan struct{}
	loop   sync.WaitGroup
}

// Summary aggregates the counters of both tiers.
type Summary struct {
	Memory     Stats
	Disk       Stats
	Promotions int64
	Cleanups   int64
}

// NewManager builds the tiers described by cfg. An empty DiskPath keeps the
// cache in memory only.
func NewManager(cfg Config, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.WithPrefix("cache")
	}
	m := &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
	}
	if cfg.DiskPath != "" {
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("open disk cache: %w", err)
		}
		m.disk = disk
	}
	if cfg.CleanupInterval > 0 && cfg.TTL > 0 {
		m.loop.Add(1)
		go m.cleanupLoop()
	}
	return m, nil
}

// Get looks key up in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.memory.Get(key); ok {
		return data, true
	}
	if m.disk == nil {
		return nil, false
	}
	data, ok := m.disk.Get(key)
	if !ok {
		return nil, false
	}
	if err := m.memory.Put(key, data); err == nil {
		m.mu.Lock()
		m.promotions++
		m.mu.Unlock()
	}
	return data, true
}

// Put stores value in memory and schedules the disk write.
func (m *Manager) Put(key string, value []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.disk != nil {
		m.writes.Add(1)
	}
	m.mu.Unlock()

	if err := m.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return err
	}
	if m.disk != nil {
		go func() {
			defer m.writes.Done()
			if err := m.disk.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
				m.logger.Warn("Disk cache write failed", "err", err)
			}
		}()
	}
	return nil
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key string) {
	m.memory.Delete(key)
	if m.disk != nil {
		m.disk.Delete(key)
	}
}

// Flush waits for pending disk writes.
func (m *Manager) Flush() {
	m.writes.Wait()
}

// Stats returns the memory tier counters, satisfying Cache.
func (m *Manager) Stats() Stats {
	return m.memory.Stats()
}

// Summary returns the counters of both tiers.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	s := Summary{Promotions: m.promotions, Cleanups: m.cleanups}
	m.mu.Unlock()
	s.Memory = m.memory.Stats()
	if m.disk != nil {
		s.Disk = m.disk.Stats()
	}
	return s
}

// Cleanup drops entries older than the TTL from both tiers.
func (m *Manager) Cleanup() int {
	if m.cfg.TTL <= 0 {
		return 0
	}
	removed := m.memory.Prune(m.cfg.TTL)
	if m.disk != nil {
		removed += m.disk.RemoveOlderThan(m.disk.now().Add(-m.cfg.TTL))
	}
	m.mu.Lock()
	m.cleanups++
	m.mu.Unlock()
	if removed > 0 {
		m.logger.Debug("Expired clips removed", "count", removed)
	}
	return removed
}

// Close stops the cleanup loop, waits for disk writes and saves the disk
// index.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	m.loop.Wait()
	m.writes.Wait()

	if m.disk != nil {
		if err := m.disk.Close(); err != nil {
			return fmt.Errorf("close disk cache: %w", err)
		}
		m.logger.Debug("Cache closed", "disk", m.disk.Stats())
	}
	return nil
}

func (m *Manager) cleanupLoop() {
	defer m.loop.Done()
	t := time.NewTicker(m.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}
