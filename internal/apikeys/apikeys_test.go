package apikeys

import (
	"context"
	"errors"
	"testing"
)

func TestFixedLookup(t *testing.T) {
	store := Fixed{"key123": "Acme", "blank": ""}

	caller, err := store.Lookup(context.Background(), "key123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if caller != "Acme" {
		t.Fatalf("expected Acme, got %s", caller)
	}

	if _, err := store.Lookup(context.Background(), "missing"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected unknown key, got %v", err)
	}
	if _, err := store.Lookup(context.Background(), "blank"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected unknown key for empty binding, got %v", err)
	}
}

func TestNewRedisStoreNilClient(t *testing.T) {
	if _, err := NewRedisStore(nil); !errors.Is(err, ErrClientRequired) {
		t.Fatalf("expected client required, got %v", err)
	}
}
