package memory

import (
	"context"
	"errors"
	"testing"
)

func TestStorePutGetCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	payload := []byte(`{"a":1}`)
	if err := store.Put(ctx, "k", payload); err != nil {
		t.Fatalf("put: %v", err)
	}
	payload[0] = 'x'
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(got) != `{"a":1}` {
		t.Fatalf("unexpected get %q %v %v", got, ok, err)
	}
	got[0] = 'y'
	again, _, _ := store.Get(ctx, "k")
	if string(again) != `{"a":1}` {
		t.Fatalf("get must return a copy")
	}
}

func TestStoreClosed(t *testing.T) {
	store := NewStore()
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Put(context.Background(), "k", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, _, err := store.Get(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
