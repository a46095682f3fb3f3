package wallet

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	cred, err := Generate("42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := store.Save(ctx, cred); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.GetCredential(ctx, "42")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if loaded.Address != cred.Address {
		t.Fatalf("address mismatch: %s != %s", loaded.Address, cred.Address)
	}
	if loaded.PrivateKey.String() != cred.PrivateKey.String() {
		t.Fatalf("private key did not round-trip")
	}

	addr, err := store.GetAddress(ctx, "42")
	if err != nil || addr != cred.Address {
		t.Fatalf("get address: %q, %v", addr, err)
	}

	// A fresh store over the same directory must see the persisted user.
	reopened, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := reopened.GetCredential(ctx, "42"); err != nil {
		t.Fatalf("persisted credential missing after reopen: %v", err)
	}
}

func TestMemoryStoreMissingUser(t *testing.T) {
	store, err := NewMemoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.GetCredential(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetAddress(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFromBase58RederivesAddress(t *testing.T) {
	cred, err := Generate("7")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rebuilt, err := FromBase58("7", cred.PrivateKey.String())
	if err != nil {
		t.Fatalf("from base58: %v", err)
	}
	if rebuilt.Address != cred.Address {
		t.Fatalf("re-derived address mismatch: %s != %s", rebuilt.Address, cred.Address)
	}
}
