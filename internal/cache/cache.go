// Package cache implements the embedded key-value environment pykuang
// uses to remember which random IPv4 addresses it has already drawn, so
// the address generator converges instead of re-discovering the same
// hosts forever. The original Python project uses LMDB with named
// sub-databases and per-entry TTLs; we use bbolt (pure Go, no cgo),
// whose named buckets and View/Update transactions map onto LMDB's
// named databases and read-only/read-write transactions almost exactly.
package cache

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// IPCacheBucket is the bucket name the address generator's
// de-duplication cache lives in, mirroring the original's
// CacheType.IPCache.
const IPCacheBucket = "IPCache"

// marker is the opaque value pykuang stores for drawn addresses; only
// the presence of the key matters (see spec: "the specified tuple for
// IPCache is (marker='1', expires_at=null)").
var marker = []byte{'1'}

// Environment owns the on-disk bbolt database every named Bucket is
// carved out of.
type Environment struct {
	db *bbolt.DB
}

// Open creates or opens the cache environment at path. The containing
// directory must already exist.
func Open(path string) (*Environment, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	return &Environment{db: db}, nil
}

// Close releases the underlying bbolt database.
func (e *Environment) Close() error {
	return e.db.Close()
}

// Bucket returns a handle to the named database, creating it if
// necessary. ttl of zero means entries never expire.
func (e *Environment) Bucket(name string, ttl time.Duration) (*Bucket, error) {
	err := e.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cache: create bucket %s: %w", name, err)
	}
	return &Bucket{env: e, name: name, ttl: ttl}, nil
}

// Bucket is a named database within the cache environment, wrapping
// pykuang's scoped-transaction access pattern: callers run a closure
// against a Tx inside View (read-only) or Update (read-write).
type Bucket struct {
	env  *Environment
	name string
	ttl  time.Duration
}

// Tx is a single cache transaction, offering the get/put/delete/contains
// operations the spec calls for. Expired entries are reported as absent;
// a read-write Tx additionally deletes them eagerly, a read-only Tx
// leaves them in place for a later writer to reap.
type Tx struct {
	bucket *bbolt.Bucket
	rw     bool
	ttl    time.Duration
}

// View runs fn in a read-only transaction.
func (b *Bucket) View(fn func(tx *Tx) error) error {
	return b.env.db.View(func(btx *bbolt.Tx) error {
		bkt := btx.Bucket([]byte(b.name))
		if bkt == nil {
			return fmt.Errorf("cache: bucket %s does not exist", b.name)
		}
		return fn(&Tx{bucket: bkt, rw: false, ttl: b.ttl})
	})
}

// Update runs fn in a read-write transaction.
func (b *Bucket) Update(fn func(tx *Tx) error) error {
	return b.env.db.Update(func(btx *bbolt.Tx) error {
		bkt := btx.Bucket([]byte(b.name))
		if bkt == nil {
			return fmt.Errorf("cache: bucket %s does not exist", b.name)
		}
		return fn(&Tx{bucket: bkt, rw: true, ttl: b.ttl})
	})
}

// encode packs a value with its expiry (absolute unix nanoseconds, 0 for
// no expiry) as an 8-byte big-endian prefix followed by the raw value.
func encode(value []byte, ttl time.Duration) []byte {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expiresAt))
	copy(buf[8:], value)
	return buf
}

// decode splits a stored entry back into its value and expiry, and
// reports whether it is still valid (expiresAt == 0 or in the future).
func decode(raw []byte) (value []byte, valid bool) {
	if len(raw) < 8 {
		return nil, false
	}
	expiresAt := int64(binary.BigEndian.Uint64(raw[:8]))
	if expiresAt != 0 && time.Now().UnixNano() >= expiresAt {
		return raw[8:], false
	}
	return raw[8:], true
}

// Get returns the value stored for key, or (nil, false) if it is absent
// or expired. In a read-write Tx, an expired entry is deleted eagerly.
func (t *Tx) Get(key []byte) ([]byte, bool) {
	raw := t.bucket.Get(key)
	if raw == nil {
		return nil, false
	}
	val, valid := decode(raw)
	if !valid {
		if t.rw {
			_ = t.bucket.Delete(key)
		}
		return nil, false
	}
	return val, true
}

// Put stores value under key with the Bucket's configured TTL. Called
// on a read-only Tx, Put writes nothing and returns an error.
func (t *Tx) Put(key, value []byte) error {
	if !t.rw {
		return fmt.Errorf("cache: cannot write in a read-only transaction")
	}
	return t.bucket.Put(key, encode(value, t.ttl))
}

// Delete removes key from the bucket. Like Put, it requires a
// read-write Tx.
func (t *Tx) Delete(key []byte) error {
	if !t.rw {
		return fmt.Errorf("cache: cannot delete in a read-only transaction")
	}
	return t.bucket.Delete(key)
}

// Contains reports whether key is present and not expired. In a
// read-write Tx, an expired entry is deleted eagerly.
func (t *Tx) Contains(key []byte) bool {
	_, ok := t.Get(key)
	return ok
}

// MarkSeen records that an IPv4/IPv6 address string has been drawn by
// the generator. It is a thin convenience over Put using the IPCache
// marker value.
func (t *Tx) MarkSeen(addr string) error {
	return t.Put([]byte(addr), marker)
}

// Purge walks the bucket removing expired entries. If complete is true,
// every entry is removed regardless of expiry.
func (b *Bucket) Purge(complete bool) error {
	return b.env.db.Update(func(btx *bbolt.Tx) error {
		bkt := btx.Bucket([]byte(b.name))
		if bkt == nil {
			return fmt.Errorf("cache: bucket %s does not exist", b.name)
		}
		cur := bkt.Cursor()
		var toDelete [][]byte
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			_, valid := decode(v)
			if complete || !valid {
				// Copy key: cursor-owned slices are invalidated by
				// mutation during iteration.
				kk := make([]byte, len(k))
				copy(kk, k)
				toDelete = append(toDelete, kk)
			}
		}
		for _, k := range toDelete {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
