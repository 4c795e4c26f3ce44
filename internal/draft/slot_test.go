package draft

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestBoltSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "drafts.db")

	slot, err := OpenBoltSlot(path)
	if err != nil {
		t.Fatalf("OpenBoltSlot() error = %v", err)
	}

	if slot.Path() != path {
		t.Errorf("Path() = %q, want %q", slot.Path(), path)
	}

	got, err := slot.Get("missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get(missing) = %q, want nil", got)
	}

	if err := slot.Put("k", []byte("v1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := slot.Put("k", []byte("v2")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err = slot.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get() = %q, want v2", got)
	}

	if err := slot.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Value survives reopening
	slot, err = OpenBoltSlot(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer slot.Close()

	got, err = slot.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get() after reopen = %q, want v2", got)
	}
}

func TestBoltSlotSharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drafts.db")

	first, err := OpenBoltSlot(path)
	if err != nil {
		t.Fatalf("OpenBoltSlot() error = %v", err)
	}
	defer first.Close()

	second, err := OpenBoltSlot(path)
	if err != nil {
		t.Fatalf("second OpenBoltSlot() error = %v", err)
	}
	defer second.Close()

	if err := first.Put("k", []byte("one")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := second.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "one" {
		t.Errorf("Get() = %q, want one", got)
	}

	if err := second.Put("k", []byte("two")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, _ = first.Get("k")
	if string(got) != "two" {
		t.Errorf("Get() = %q, want two", got)
	}
}

func TestBoltSlotClosed(t *testing.T) {
	slot, err := OpenBoltSlot(filepath.Join(t.TempDir(), "drafts.db"))
	if err != nil {
		t.Fatalf("OpenBoltSlot() error = %v", err)
	}
	slot.Close()

	if _, err := slot.Get("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() error = %v, want ErrClosed", err)
	}
	if err := slot.Put("k", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Put() error = %v, want ErrClosed", err)
	}
}

func TestMemorySlotCopies(t *testing.T) {
	slot := NewMemorySlot()

	value := []byte("abc")
	slot.Put("k", value)
	value[0] = 'x'

	got, _ := slot.Get("k")
	if string(got) != "abc" {
		t.Errorf("Get() = %q, want abc", got)
	}

	got[1] = 'y'
	again, _ := slot.Get("k")
	if string(again) != "abc" {
		t.Errorf("Get() = %q, want abc", again)
	}
}
