package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
)

// FsyncMode defines durability behavior for batch commits.
type FsyncMode int

const (
	// FsyncAlways syncs the WAL on every committed batch.
	FsyncAlways FsyncMode = iota
	// FsyncInterval lets Pebble coalesce WAL syncs within FsyncInterval.
	FsyncInterval
	// FsyncNever leaves syncing entirely to Pebble.
	FsyncNever
)

func ParseFsyncMode(s string) (FsyncMode, error) {
	switch strings.ToLower(s) {
	case "", "always":
		return FsyncAlways, nil
	case "interval":
		return FsyncInterval, nil
	case "never":
		return FsyncNever, nil
	}
	return 0, fmt.Errorf("unknown fsync mode %q", s)
}

// MetricsHook observes storage latencies and sizes.
type MetricsHook interface {
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

type NoopMetrics struct{}

func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

type Options struct {
	DataDir string
	// FS overrides the filesystem; tests pass vfs.NewMem().
	FS            vfs.FS
	Fsync         FsyncMode
	FsyncInterval time.Duration
	CacheSize     int64
	Metrics       MetricsHook
}

// PebbleStore persists account regions, signer nonces and the committed head.
// Writes only happen through Commit so every batch lands atomically.
type PebbleStore struct {
	db        *pebble.DB
	cache     *pebble.Cache
	writeSync bool
	metrics   MetricsHook
}

func Open(opts Options) (*PebbleStore, error) {
	if opts.DataDir == "" {
		return nil, errors.New("storage: DataDir is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64 << 20
	}

	cache := pebble.NewCache(opts.CacheSize)
	po := &pebble.Options{
		Cache:                 cache,
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
		FS:                    opts.FS,
	}
	if opts.Fsync == FsyncInterval {
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		cache.Unref()
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", opts.DataDir, err)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &PebbleStore{
		db:        db,
		cache:     cache,
		writeSync: opts.Fsync == FsyncAlways,
		metrics:   metrics,
	}, nil
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.cache.Unref()
	return err
}

// Changeset is everything one batch writes.
type Changeset struct {
	Regions map[common.Address][]byte
	Nonces  map[common.Address]uint64
	Head    *Head
}

func (c *Changeset) Empty() bool {
	return len(c.Regions) == 0 && len(c.Nonces) == 0 && c.Head == nil
}

// Commit writes the changeset in a single Pebble batch.
func (s *PebbleStore) Commit(cs *Changeset) error {
	b := s.db.NewBatch()
	defer b.Close()

	ops := 0
	for addr, data := range cs.Regions {
		if err := b.Set(regionKey(addr), data, nil); err != nil {
			return fmt.Errorf("batch region %s: %w", addr.Hex(), err)
		}
		ops++
	}
	for addr, n := range cs.Nonces {
		if err := b.Set(nonceKey(addr), encodeU64(n), nil); err != nil {
			return fmt.Errorf("batch nonce %s: %w", addr.Hex(), err)
		}
		ops++
	}
	if cs.Head != nil {
		if err := b.Set([]byte(keyHead), encodeHead(*cs.Head), nil); err != nil {
			return fmt.Errorf("batch head: %w", err)
		}
		ops++
	}

	start := time.Now()
	size := b.Len()
	syncMode := pebble.NoSync
	if s.writeSync {
		syncMode = pebble.Sync
	}
	if err := b.Commit(syncMode); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	s.metrics.ObserveBatchCommit(time.Since(start), ops, size)
	return nil
}

// NewSnapshot returns a consistent read view. Caller must Close it.
func (s *PebbleStore) NewSnapshot() *Snapshot {
	snap := s.db.NewSnapshot()
	return &Snapshot{snap: snap, r: reader{src: snap, metrics: s.metrics}}
}

func (s *PebbleStore) reader() reader { return reader{src: s.db, metrics: s.metrics} }

// GetRegion returns a copy of the stored region; ok is false when absent.
func (s *PebbleStore) GetRegion(addr common.Address) ([]byte, bool, error) {
	return s.reader().get(regionKey(addr))
}

// GetNonce returns the last nonce accepted from signer (0 if never seen).
// The next envelope must carry a larger one.
func (s *PebbleStore) GetNonce(addr common.Address) (uint64, error) {
	return s.reader().nonce(addr)
}

func (s *PebbleStore) Head() (Head, error) { return s.reader().head() }

func (s *PebbleStore) Regions(fn func(addr common.Address, data []byte) error) error {
	return s.reader().regions(fn)
}

// Snapshot is a point-in-time view over a PebbleStore.
type Snapshot struct {
	snap *pebble.Snapshot
	r    reader
}

func (s *Snapshot) GetRegion(addr common.Address) ([]byte, bool, error) {
	return s.r.get(regionKey(addr))
}

func (s *Snapshot) GetNonce(addr common.Address) (uint64, error) { return s.r.nonce(addr) }
func (s *Snapshot) Head() (Head, error)                          { return s.r.head() }

func (s *Snapshot) Regions(fn func(addr common.Address, data []byte) error) error {
	return s.r.regions(fn)
}

func (s *Snapshot) Close() error { return s.snap.Close() }

// reader implements lookups over either the live DB or a snapshot.
type reader struct {
	src     pebble.Reader
	metrics MetricsHook
}

func (r reader) get(key []byte) ([]byte, bool, error) {
	start := time.Now()
	val, closer, err := r.src.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	defer closer.Close()
	out := append([]byte(nil), val...)
	r.metrics.ObserveRead(time.Since(start), len(out))
	return out, true, nil
}

func (r reader) nonce(addr common.Address) (uint64, error) {
	val, ok, err := r.get(nonceKey(addr))
	if err != nil || !ok {
		return 0, err
	}
	return decodeU64(val)
}

func (r reader) head() (Head, error) {
	val, ok, err := r.get([]byte(keyHead))
	if err != nil || !ok {
		return Head{}, err
	}
	return decodeHead(val)
}

// regions visits every stored region in address order.
func (r reader) regions(fn func(addr common.Address, data []byte) error) error {
	prefix := []byte(prefixRegion)
	iter, err := r.src.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("region iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		addr, err := regionAddr(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(addr, append([]byte(nil), iter.Value()...)); err != nil {
			return err
		}
	}
	return iter.Error()
}
