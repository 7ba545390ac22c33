package tabs

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeCounter hands out sequential values under a mutex. The durability
// guarantees of the real counter are exercised in its own package.
type fakeCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{values: map[string]uint64{}}
}

func (c *fakeCounter) Next(_ context.Context, name string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name]++
	return c.values[name], nil
}

type fakeTranscoder struct {
	output []byte
	err    error
	calls  int
}

func (f *fakeTranscoder) FlacToOgg(_ context.Context, _ []byte) ([]byte, error) {
	f.calls++
	return f.output, f.err
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{
		RootDir: t.TempDir(),
		Counter: newFakeCounter(),
		Clock:   func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	return store
}

func mustTabID(t *testing.T, value string) TabID {
	t.Helper()
	id, err := NewTabID(value)
	if err != nil {
		t.Fatalf("unexpected tab id error: %v", err)
	}
	return id
}

func mustCreateTab(t *testing.T, store *Store, title string) TabID {
	t.Helper()
	id, err := store.AllocateNextID(context.Background())
	if err != nil {
		t.Fatalf("unexpected allocation error: %v", err)
	}
	if _, err := store.CreateDocument(id, []byte("tab-bytes"), "gp5", title, "", "upload.gp5"); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return id
}
