// Package badger is an eventstore.Store on top of the badger key/value store.
package badger

import (
	"encoding/binary"
	"hash/maphash"
	"os"
	"sync/atomic"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventstore"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/bridgr/pkg/slog"
	"github.com/Hubmakerlabs/bridgr/pkg/units"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

var _ eventstore.Store = (*Backend)(nil)

type Backend struct {
	Path string
	// InMemory keeps everything in memory and ignores Path, for tests.
	InMemory       bool
	BlockCacheSize int
	// DB is the badger db interface
	*badger.DB
	// seq is the monotonic collision free index for raw event storage.
	seq *badger.Sequence
	// subs are the live filter subscriptions by handle.
	subs       *xsync.MapOf[uint64, filter.Filters]
	lastHandle atomic.Uint64
}

const DefaultBlockCacheSize = 64 * units.Mb

// GetBackend returns a reasonably configured badger.Backend.
func GetBackend(path string, blockCacheSize int) (b *Backend) {
	// compression needs a block cache
	if blockCacheSize <= 0 {
		blockCacheSize = DefaultBlockCacheSize
	}
	return &Backend{Path: path, BlockCacheSize: blockCacheSize}
}

// GetMemBackend returns a Backend that never touches the disk.
func GetMemBackend() (b *Backend) {
	return &Backend{InMemory: true, BlockCacheSize: 16 * units.Mb}
}

func (b *Backend) Init() (err error) {
	var opts badger.Options
	if b.InMemory {
		log.D.Ln("opening in memory badger event store")
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		log.I.Ln("opening badger event store at", b.Path)
		opts = badger.DefaultOptions(b.Path)
		opts.CompactL0OnClose = true
		opts.Compression = options.ZSTD
	}
	opts.BlockCacheSize = int64(b.BlockCacheSize)
	opts.BlockSize = units.Mb
	opts.Logger = badgerLog{"badger:"}
	if b.DB, err = badger.Open(opts); chk.E(err) {
		return err
	}
	log.D.Ln("getting event store sequence index", b.Path)
	if b.seq, err = b.DB.GetSequence([]byte("events"), 1000); chk.E(err) {
		_ = b.DB.Close()
		return err
	}
	b.subs = xsync.NewTypedMapOf[uint64, filter.Filters](hashHandle)
	return nil
}

func hashHandle(seed maphash.Seed, h uint64) uint64 {
	var k [8]byte
	binary.LittleEndian.PutUint64(k[:], h)
	return maphash.Bytes(seed, k[:])
}

func (b *Backend) Close() (err error) {
	if b.DB == nil {
		return
	}
	chk.E(b.seq.Release())
	err = b.DB.Close()
	b.DB = nil
	return
}

// Serial returns a new serial value, used to store an event record with a
// conflict-free unique code (it is a monotonic, atomic, ascending counter).
func (b *Backend) Serial() (ser []byte, err error) {
	var serU64 uint64
	if serU64, err = b.seq.Next(); chk.E(err) {
		return
	}
	ser = make([]byte, SerialLen)
	binary.BigEndian.PutUint64(ser, serU64)
	return
}
