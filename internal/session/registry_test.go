package session

import (
	"testing"

	"github.com/tdamd/pairctl/internal/testutil/testlog"
)

func TestRegistryDeleteOwnedGuardsReplacement(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	old := newHandle("sess-1", "", ModeQR)
	r.Set("sess-1", old)

	replacement := newHandle("sess-1", "", ModeResume)
	r.Set("sess-1", replacement)

	// The finished loop of the old handle must not evict its replacement.
	r.DeleteOwned("sess-1", old)
	got, ok := r.Get("sess-1")
	if !ok || got != replacement {
		t.Fatalf("replacement evicted by stale owner")
	}

	r.DeleteOwned("sess-1", replacement)
	if _, ok := r.Get("sess-1"); ok {
		t.Fatalf("owner delete left entry behind")
	}
}

func TestRegistryForEachSorted(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		r.Set(id, newHandle(id, "", ModeQR))
	}
	var order []string
	r.ForEach(func(h *Handle) { order = append(order, h.SessionID()) })
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("order %v", order)
	}
	if r.Len() != 3 {
		t.Fatalf("len=%d", r.Len())
	}
}
