package cache

import (
	"bytes"
	"path/filepath"
	"testing"
)

// backendTest exercises the Backend contract against any implementation.
func backendTest(t *testing.T, b Backend) {
	t.Helper()

	if _, ok, err := b.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}

	if err := b.Set("k", []byte("v1")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	data, ok, err := b.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get(k) = ok=%v err=%v, want present", ok, err)
	}
	if !bytes.Equal(data, []byte("v1")) {
		t.Errorf("Get(k) = %q, want %q", data, "v1")
	}

	// Overwrite.
	if err := b.Set("k", []byte("v2")); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	data, _, _ = b.Get("k")
	if !bytes.Equal(data, []byte("v2")) {
		t.Errorf("Get(k) after overwrite = %q, want %q", data, "v2")
	}

	// Delete, twice (absent delete is not an error).
	if err := b.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := b.Delete("k"); err != nil {
		t.Fatalf("Delete() of absent key error = %v", err)
	}
	if _, ok, _ := b.Get("k"); ok {
		t.Error("Get(k) after delete should be absent")
	}
}

func TestMemoryBackend(t *testing.T) {
	backendTest(t, NewMemory())
}

func TestMemoryCopiesData(t *testing.T) {
	m := NewMemory()
	src := []byte("abc")
	if err := m.Set("k", src); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	src[0] = 'x'

	data, _, _ := m.Get("k")
	if !bytes.Equal(data, []byte("abc")) {
		t.Errorf("stored value mutated through caller slice: %q", data)
	}

	data[0] = 'y'
	again, _, _ := m.Get("k")
	if !bytes.Equal(again, []byte("abc")) {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestBoltBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt() error = %v", err)
	}
	defer b.Close()

	backendTest(t, b)
}

func TestBoltSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	b, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt() error = %v", err)
	}
	if err := b.Set("persist", []byte("yes")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt() reopen error = %v", err)
	}
	defer b.Close()

	data, ok, err := b.Get("persist")
	if err != nil || !ok {
		t.Fatalf("Get() after reopen = ok=%v err=%v, want present", ok, err)
	}
	if !bytes.Equal(data, []byte("yes")) {
		t.Errorf("Get() after reopen = %q, want %q", data, "yes")
	}
}
