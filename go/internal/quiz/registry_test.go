package quiz

import (
	"testing"

	"github.com/quizlive/quizlive/go/internal/models"
)

func TestRegistryBindLookupUnbind(t *testing.T) {
	registry := NewRegistry()

	registry.Bind("conn-1", "sess-1", models.RolePlayer, "Foxes")
	registry.Bind("conn-2", "sess-1", models.RoleHost, "")

	b, ok := registry.Lookup("conn-1")
	if !ok || b.SessionID != "sess-1" || b.Role != models.RolePlayer || b.Team != "Foxes" {
		t.Fatalf("Lookup(conn-1) = %+v, %v", b, ok)
	}
	if registry.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", registry.Count())
	}

	b, ok = registry.Unbind("conn-1")
	if !ok || b.Team != "Foxes" {
		t.Fatalf("Unbind(conn-1) = %+v, %v", b, ok)
	}
	if _, ok := registry.Lookup("conn-1"); ok {
		t.Fatal("binding survived Unbind")
	}

	// Unbinding an unmapped connection is a no-op.
	if _, ok := registry.Unbind("conn-1"); ok {
		t.Fatal("Unbind() of unmapped connection reported a binding")
	}
}

func TestRegistryRebindReplaces(t *testing.T) {
	registry := NewRegistry()

	registry.Bind("conn-1", "sess-1", models.RolePlayer, "Foxes")
	registry.Bind("conn-1", "sess-2", models.RolePlayer, "Wolves")

	b, _ := registry.Lookup("conn-1")
	if b.SessionID != "sess-2" || b.Team != "Wolves" {
		t.Fatalf("Lookup(conn-1) = %+v, want replaced binding", b)
	}
	if registry.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", registry.Count())
	}
}
