// Package cache models the ARMv5 core's instruction cache on top of the
// akita cache directory.
package cache

import (
	"encoding/binary"
	"errors"
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config is the geometry and cost of an instruction cache.
type Config struct {
	Size          int    `json:"size" yaml:"size"`
	Associativity int    `json:"associativity" yaml:"associativity"`
	BlockSize     int    `json:"block_size" yaml:"block_size"`
	HitLatency    uint32 `json:"hit_latency" yaml:"hit_latency"`
	// MissLatency includes the line fill.
	MissLatency uint32 `json:"miss_latency" yaml:"miss_latency"`
}

// ErrInvalidGeometry is returned for a cache that cannot be laid out.
var ErrInvalidGeometry = errors.New("invalid cache geometry")

// Validate checks that the geometry describes a whole number of sets of
// power-of-two lines.
func (c Config) Validate() error {
	switch {
	case c.Associativity <= 0:
		return fmt.Errorf("%w: associativity %d", ErrInvalidGeometry, c.Associativity)
	case c.BlockSize < 4 || c.BlockSize&(c.BlockSize-1) != 0:
		return fmt.Errorf("%w: block_size %d is not a power of two >= 4", ErrInvalidGeometry, c.BlockSize)
	case c.Size <= 0 || c.Size%(c.Associativity*c.BlockSize) != 0:
		return fmt.Errorf("%w: size %d is not a multiple of associativity * block_size",
			ErrInvalidGeometry, c.Size)
	}
	return nil
}

// DefaultICacheConfig returns 8KB, 4-way, 32-byte lines.
func DefaultICacheConfig() Config {
	return Config{
		Size:          8 * 1024,
		Associativity: 4,
		BlockSize:     32,
		HitLatency:    1,
		MissLatency:   8,
	}
}

// AccessResult describes one fetch through the cache.
type AccessResult struct {
	Hit     bool
	Latency uint32
	Data    uint32

	// Evicted reports that a valid line at EvictedAddr was replaced.
	Evicted     bool
	EvictedAddr uint32
}

// Statistics counts cache events since construction or Reset.
type Statistics struct {
	Reads         uint64
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Invalidations uint64
}

// BackingStore fills lines on a miss.
type BackingStore interface {
	ReadBlock(addr uint32, dst []byte)
}

// Cache is a read-only instruction cache. Stores never allocate; the owner
// invalidates lines a store overwrites.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	lines     [][]byte // set*ways + way
	backing   BackingStore
	stats     Statistics
}

// New builds a cache. A nil backing fills lines with zeroes.
func New(config Config, backing BackingStore) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	sets := config.Size / (config.Associativity * config.BlockSize)

	lines := make([][]byte, sets*config.Associativity)
	for i := range lines {
		lines[i] = make([]byte, config.BlockSize)
	}

	dir := akitacache.NewDirectory(sets, config.Associativity, config.BlockSize,
		akitacache.NewLRUVictimFinder())

	return &Cache{config: config, directory: dir, lines: lines, backing: backing}, nil
}

// Config returns the cache geometry.
func (c *Cache) Config() Config { return c.config }

// Stats returns the event counters.
func (c *Cache) Stats() Statistics { return c.stats }

func (c *Cache) line(b *akitacache.Block) []byte {
	return c.lines[b.SetID*c.config.Associativity+b.WayID]
}

func (c *Cache) lineBase(addr uint32) uint32 {
	return addr &^ uint32(c.config.BlockSize-1)
}

func (c *Cache) lookup(base uint32) *akitacache.Block {
	b := c.directory.Lookup(0, uint64(base))
	if b == nil || !b.IsValid {
		return nil
	}
	return b
}

// Read fetches a 2 or 4 byte value. The access must not cross a line.
func (c *Cache) Read(addr uint32, size int) AccessResult {
	c.stats.Reads++
	base := c.lineBase(addr)

	if b := c.lookup(base); b != nil {
		c.stats.Hits++
		c.directory.Visit(b)
		return AccessResult{
			Hit:     true,
			Latency: c.config.HitLatency,
			Data:    decode(c.line(b)[addr-base:], size),
		}
	}

	c.stats.Misses++
	res := AccessResult{Latency: c.config.MissLatency}

	victim := c.directory.FindVictim(uint64(base))
	if victim == nil {
		return res
	}
	if victim.IsValid {
		c.stats.Evictions++
		res.Evicted, res.EvictedAddr = true, uint32(victim.Tag)
	}

	data := c.line(victim)
	if c.backing == nil {
		clear(data)
	} else {
		c.backing.ReadBlock(base, data)
	}
	victim.Tag = uint64(base)
	victim.IsValid, victim.IsDirty = true, false
	c.directory.Visit(victim)

	res.Data = decode(data[addr-base:], size)
	return res
}

// Invalidate drops the line holding addr, if cached.
func (c *Cache) Invalidate(addr uint32) {
	if b := c.lookup(c.lineBase(addr)); b != nil {
		b.IsValid = false
		c.stats.Invalidations++
	}
}

// InvalidateAll drops every line and keeps the counters.
func (c *Cache) InvalidateAll() {
	for _, set := range c.directory.GetSets() {
		for _, b := range set.Blocks {
			b.IsValid = false
		}
	}
}

// Reset drops every line and clears the counters.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

func decode(b []byte, size int) uint32 {
	if size == 2 {
		return uint32(binary.LittleEndian.Uint16(b))
	}
	return binary.LittleEndian.Uint32(b)
}
