package sessions

import (
	"testing"

	"github.com/utjfc/reg-agent/pkg/models"
)

func TestMemoryStore_GetOrCreate_CreatesOnce(t *testing.T) {
	store := NewMemoryStore()

	first := store.GetOrCreate("sess-1")
	if first.Agent != models.AgentOrchestrator {
		t.Errorf("Agent = %v, want orchestrator", first.Agent)
	}
	if first.Step != nil {
		t.Error("Step should be nil for a new session")
	}

	store.SetAgent("sess-1", models.AgentNewRegistration)

	second := store.GetOrCreate("sess-1")
	if second.Agent != models.AgentNewRegistration {
		t.Errorf("GetOrCreate returned a fresh session instead of the existing one: Agent = %v", second.Agent)
	}
}

func TestMemoryStore_GetOrCreate_ReturnsIndependentClones(t *testing.T) {
	store := NewMemoryStore()

	session := store.GetOrCreate("sess-1")
	session.Agent = models.AgentReRegistration // mutate the clone, not the store

	stored, _ := store.Get("sess-1")
	if stored.Agent != models.AgentOrchestrator {
		t.Errorf("mutating a returned clone leaked into the store: Agent = %v", stored.Agent)
	}
}

func TestMemoryStore_Get_MissingReturnsFalse(t *testing.T) {
	store := NewMemoryStore()

	_, ok := store.Get("does-not-exist")
	if ok {
		t.Error("expected ok=false for a session that was never created")
	}
}

func TestMemoryStore_Append(t *testing.T) {
	store := NewMemoryStore()
	store.GetOrCreate("sess-1")

	store.Append("sess-1", models.Turn{Role: models.RoleUser, Content: "hello"})
	store.Append("sess-1", models.Turn{Role: models.RoleAssistant, Content: "hi there"})

	session, _ := store.Get("sess-1")
	if len(session.Turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(session.Turns))
	}
	if session.Turns[0].Content != "hello" || session.Turns[1].Content != "hi there" {
		t.Errorf("turns out of order or wrong content: %+v", session.Turns)
	}
}

func TestMemoryStore_SetStep(t *testing.T) {
	store := NewMemoryStore()
	store.GetOrCreate("sess-1")

	step := 2
	store.SetStep("sess-1", &step)

	session, _ := store.Get("sess-1")
	if session.Step == nil || *session.Step != 2 {
		t.Fatalf("Step = %v, want 2", session.Step)
	}

	store.SetStep("sess-1", nil)
	session, _ = store.Get("sess-1")
	if session.Step != nil {
		t.Errorf("Step = %v, want nil", session.Step)
	}
}

func TestMemoryStore_InjectMetadata_Merges(t *testing.T) {
	store := NewMemoryStore()
	store.GetOrCreate("sess-1")

	store.InjectMetadata("sess-1", map[string]string{"team": "tigers", "age_group": "u10"})
	store.InjectMetadata("sess-1", map[string]string{"season": "2526"})

	session, _ := store.Get("sess-1")
	want := map[string]string{"team": "tigers", "age_group": "u10", "season": "2526"}
	for k, v := range want {
		if session.Metadata[k] != v {
			t.Errorf("Metadata[%q] = %q, want %q", k, session.Metadata[k], v)
		}
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	store.GetOrCreate("sess-1")
	store.Append("sess-1", models.Turn{Role: models.RoleUser, Content: "hello"})

	store.Clear("sess-1")

	_, ok := store.Get("sess-1")
	if ok {
		t.Error("expected session to be gone after Clear")
	}

	fresh := store.GetOrCreate("sess-1")
	if len(fresh.Turns) != 0 {
		t.Errorf("expected a clean session after Clear, got %d turns", len(fresh.Turns))
	}
}
