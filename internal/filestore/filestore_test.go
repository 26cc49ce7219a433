package filestore

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalRoundTrip(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	payload := []byte("scanned reference document")
	key, size, err := store.Store(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if key == "" {
		t.Fatal("expected a non-empty key")
	}
	if size != int64(len(payload)) {
		t.Fatalf("size = %d, want %d", size, len(payload))
	}

	rc, err := store.Retrieve(key)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q", got)
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Retrieve(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete of a missing object must succeed, got %v", err)
	}
}

func TestLocalRejectsTraversalKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	for _, key := range []string{"", "a", "../etc/passwd", `..\x`, "a.b"} {
		if _, err := store.Retrieve(key); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
	}
}

func TestNewLocalRequiresRoot(t *testing.T) {
	if _, err := NewLocal("  "); err == nil || !strings.Contains(err.Error(), "root") {
		t.Fatalf("expected root validation error, got %v", err)
	}
}
