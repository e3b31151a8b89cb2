package storage

import (
	"errors"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("postgres", "")
	if !errors.Is(err, ErrUnsupportedStore) {
		t.Fatalf("expected ErrUnsupportedStore, got %v", err)
	}
}

func TestNewStoreSQLiteRequiresPath(t *testing.T) {
	if _, err := NewStore(KindSQLite, ""); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestCloseIfSupportedMemory(t *testing.T) {
	if err := CloseIfSupported(NewMemoryStore()); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
	if err := CloseIfSupported(nil); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}

func TestDefaultStoreKindIsSupported(t *testing.T) {
	store, err := NewStore(DefaultStoreKind(), t.TempDir()+"/coevolve.db")
	if err != nil {
		t.Fatalf("new default store: %v", err)
	}
	_ = CloseIfSupported(store)
}
