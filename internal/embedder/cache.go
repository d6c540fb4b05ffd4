package embedder

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of vectors kept in memory.
const DefaultCacheSize = 4096

// DefaultSharedTimeout bounds a backend call shared by concurrent misses.
const DefaultSharedTimeout = 30 * time.Second

const cacheKeyPrefix = "emb/"

// CachedEmbedder memoizes another Embedder's vectors by content hash.
//
// Lookups go memory LRU first, then the optional Badger store. Concurrent
// misses for the same key share one backend call; that call is detached
// from any single caller's cancellation, and each caller stops waiting when
// its own context ends. Errors are never cached.
type CachedEmbedder struct {
	next    Embedder
	memory  *lru.Cache[string, []float32]
	db      *badger.DB
	group   singleflight.Group
	timeout time.Duration
	logger  *slog.Logger
}

// CacheOption is a functional option for configuring CachedEmbedder.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	size    int
	db      *badger.DB
	timeout time.Duration
	logger  *slog.Logger
}

// WithCacheSize sets the in-memory LRU capacity.
func WithCacheSize(n int) CacheOption {
	return func(o *cacheOptions) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithPersistentStore adds a Badger store behind the memory cache.
func WithPersistentStore(db *badger.DB) CacheOption {
	return func(o *cacheOptions) {
		o.db = db
	}
}

// WithSharedTimeout bounds the backend call shared by concurrent misses.
func WithSharedTimeout(d time.Duration) CacheOption {
	return func(o *cacheOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(o *cacheOptions) {
		o.logger = logger
	}
}

// NewCachedEmbedder wraps next with a content-addressed cache.
func NewCachedEmbedder(next Embedder, opts ...CacheOption) (*CachedEmbedder, error) {
	o := cacheOptions{
		size:    DefaultCacheSize,
		timeout: DefaultSharedTimeout,
		logger:  slog.Default().With("component", "embedding_cache"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	memory, err := lru.New[string, []float32](o.size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &CachedEmbedder{
		next:    next,
		memory:  memory,
		db:      o.db,
		timeout: o.timeout,
		logger:  o.logger,
	}, nil
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	if vec, ok := c.memory.Get(key); ok {
		return cloneVector(vec), nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if vec, ok := c.readPersistent(key); ok {
			c.memory.Add(key, vec)
			return vec, nil
		}

		callCtx, cancel := context.WithTimeout(shared, c.timeout)
		defer cancel()

		vec, err := c.next.Embed(callCtx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) != c.next.Dimension() {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.next.Dimension())
		}

		vec = cloneVector(vec)
		c.memory.Add(key, vec)
		c.writePersistent(key, vec)
		return vec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneVector(res.Val.([]float32)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dimension returns the dimensionality of the embedding vectors.
func (c *CachedEmbedder) Dimension() int {
	return c.next.Dimension()
}

// ModelName returns the wrapped model name.
func (c *CachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

// Len reports the number of vectors held in memory.
func (c *CachedEmbedder) Len() int {
	return c.memory.Len()
}

// key is sha1(model|text), so switching models never serves stale vectors.
func (c *CachedEmbedder) key(text string) string {
	sum := sha1.Sum([]byte(c.next.ModelName() + "|" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) readPersistent(key string) ([]float32, bool) {
	if c.db == nil {
		return nil, false
	}

	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeVector(val)
			if err != nil {
				return err
			}
			vec = decoded
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("embedding cache read failed", "error", err)
		}
		return nil, false
	}
	if len(vec) != c.next.Dimension() {
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) writePersistent(key string, vec []float32) {
	if c.db == nil {
		return
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cacheKeyPrefix+key), encodeVector(vec))
	})
	if err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
}

// encodeVector stores float32 values little-endian, four bytes each.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}

// OpenCacheStore opens a Badger database for the embedding cache. An empty
// dir opens an in-memory store.
func OpenCacheStore(dir string, logger *slog.Logger) (*badger.DB, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = &badgerLogger{logger: logger.With("component", "badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache store: %w", err)
	}
	return db, nil
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

var _ Embedder = (*CachedEmbedder)(nil)
