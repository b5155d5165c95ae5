package session

import "testing"

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	r.Insert(1, "dev-a")
	r.Insert(2, "dev-b")

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if _, ok := r.Lookup(1); !ok {
		t.Fatal("expected handle 1 present")
	}
	r.Remove(1)
	if _, ok := r.Lookup(1); ok {
		t.Fatal("expected handle 1 removed")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

type closeCounter struct{ n int }

func (c *closeCounter) CloseDevice(dev NativeHandle) int32 {
	c.n++
	return 0
}

func TestRegistryDrainClosesEveryEntryOnce(t *testing.T) {
	r := NewRegistry()
	r.Insert(1, "a")
	r.Insert(2, "b")
	r.Insert(3, "c")

	c := &closeCounter{}
	r.Drain(c)

	if c.n != 3 {
		t.Fatalf("closed %d entries, want 3", c.n)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() after drain = %d, want 0", r.Len())
	}
}
