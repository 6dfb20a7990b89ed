package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestEnv(t *testing.T) *Environment {
	t.Helper()
	dir := t.TempDir()
	env, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestBucketPutGet(t *testing.T) {
	env := openTestEnv(t)
	b, err := env.Bucket(IPCacheBucket, 0)
	if err != nil {
		t.Fatalf("Bucket: %s", err)
	}

	err = b.Update(func(tx *Tx) error {
		return tx.MarkSeen("192.0.2.1")
	})
	if err != nil {
		t.Fatalf("Update: %s", err)
	}

	err = b.View(func(tx *Tx) error {
		if !tx.Contains([]byte("192.0.2.1")) {
			t.Errorf("expected 192.0.2.1 to be present")
		}
		if tx.Contains([]byte("192.0.2.2")) {
			t.Errorf("did not expect 192.0.2.2 to be present")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %s", err)
	}
}

func TestBucketExpiry(t *testing.T) {
	env := openTestEnv(t)
	b, err := env.Bucket("short", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Bucket: %s", err)
	}

	if err := b.Update(func(tx *Tx) error { return tx.Put([]byte("k"), []byte("v")) }); err != nil {
		t.Fatalf("Update: %s", err)
	}

	time.Sleep(30 * time.Millisecond)

	err = b.Update(func(tx *Tx) error {
		if tx.Contains([]byte("k")) {
			t.Errorf("expected expired entry to read as absent")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %s", err)
	}
}

func TestPurge(t *testing.T) {
	env := openTestEnv(t)
	b, err := env.Bucket("purgeme", time.Millisecond)
	if err != nil {
		t.Fatalf("Bucket: %s", err)
	}

	for _, k := range []string{"a", "b", "c"} {
		if err := b.Update(func(tx *Tx) error { return tx.Put([]byte(k), []byte("v")) }); err != nil {
			t.Fatalf("Update: %s", err)
		}
	}

	time.Sleep(10 * time.Millisecond)

	if err := b.Purge(false); err != nil {
		t.Fatalf("Purge: %s", err)
	}

	err = b.View(func(tx *Tx) error {
		if tx.Contains([]byte("a")) {
			t.Errorf("expected a to be purged")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %s", err)
	}
}
