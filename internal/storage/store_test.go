package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	appconfig "github.com/saker-ai/assistant-bridge/internal/config"
)

func exerciseStore(t *testing.T, store StateStore) {
	t.Helper()
	ctx := context.Background()

	conv, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !ValidID(conv.ID) {
		t.Fatalf("Create id=%q is not valid", conv.ID)
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if len(got.State) != 0 || got.Turns != 0 {
		t.Fatalf("new conversation=%+v, want empty", got)
	}

	got.State = []byte{0xDE, 0xAD, 0x00}
	got.Turns = 1
	got.LastRequestText = "what time is it"
	if err := store.Save(ctx, got); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	again, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get after save error: %v", err)
	}
	if !bytes.Equal(again.State, []byte{0xDE, 0xAD, 0x00}) || again.Turns != 1 || again.LastRequestText != "what time is it" {
		t.Fatalf("saved conversation=%+v", again)
	}
	if again.UpdatedAt.Before(again.CreatedAt) {
		t.Fatalf("UpdatedAt=%s before CreatedAt=%s", again.UpdatedAt, again.CreatedAt)
	}

	if err := store.Delete(ctx, conv.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.Get(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete err=%v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete err=%v, want ErrNotFound", err)
	}
	for _, id := range []string{"", "..", "../escape", "a/b"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("Get(%q) err=%v, want ErrInvalidID", id, err)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	exerciseStore(t, store)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("leftover files=%d, want 0", len(entries))
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if _, err := store.Get(context.Background(), "broken"); err == nil {
		t.Fatalf("Get on corrupt file succeeded")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.Create(ctx)
	conv.State = []byte{1}
	_ = store.Save(ctx, conv)
	conv.State[0] = 9

	got, _ := store.Get(ctx, conv.ID)
	got.State[0] = 7
	again, _ := store.Get(ctx, conv.ID)
	if again.State[0] != 1 {
		t.Fatalf("stored state mutated to %v", again.State)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	if store, err := Open(ctx, appconfig.StateStoreConfig{Backend: "memory"}); err != nil {
		t.Fatalf("Open memory error: %v", err)
	} else if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("Open memory=%T", store)
	}
	if store, err := Open(ctx, appconfig.StateStoreConfig{Backend: "file", Dir: t.TempDir()}); err != nil {
		t.Fatalf("Open file error: %v", err)
	} else if _, ok := store.(*FileStore); !ok {
		t.Fatalf("Open file=%T", store)
	}
	if _, err := Open(ctx, appconfig.StateStoreConfig{Backend: "cassandra"}); err == nil {
		t.Fatalf("Open unknown backend succeeded")
	}
	if _, err := Open(ctx, appconfig.StateStoreConfig{Backend: "redis", RedisAddr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("Open unreachable redis succeeded")
	}
}

func TestRedisKey(t *testing.T) {
	if got := redisKey("abc"); got != "conversation:abc" {
		t.Fatalf("redisKey=%q, want conversation:abc", got)
	}
}
