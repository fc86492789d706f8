package preset

import "testing"

func TestMemoryStoreFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())

	got, ok := store.FindByID("geography")
	if !ok {
		t.Fatal("expected geography preset")
	}
	if got.System == "" {
		t.Fatal("expected geography preset to carry a system prompt")
	}

	if _, ok := store.FindByID("missing"); ok {
		t.Fatal("expected missing preset lookup to fail")
	}
}

func TestMemoryStoreListIsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	list := store.List()
	list[0].Name = "changed"

	if store.List()[0].Name == "changed" {
		t.Fatal("List must return a copy")
	}
}

func TestDefaultPresetHasNoSystemPrompt(t *testing.T) {
	store := NewMemoryStore(Seed())
	def, ok := store.FindByID(DefaultID)
	if !ok {
		t.Fatal("expected default preset")
	}
	if def.System != "" {
		t.Fatalf("default preset should not seed a system turn, got %q", def.System)
	}
}
