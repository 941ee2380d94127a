package chatapi

import (
	"net/http"
	"testing"
)

func TestHandleDevSeed_NotRegisteredWithoutFlag(t *testing.T) {
	h, _, _ := newTestHandler(t, &scriptedProvider{}, false)

	rec := postJSON(t, h, "/dev/seed", map[string]any{"session_id": "sess-seed"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when dev endpoints are disabled", rec.Code)
	}
}

func TestHandleDevSeed_InstallsSessionState(t *testing.T) {
	h, sessionStore, _ := newTestHandler(t, &scriptedProvider{}, true)

	step23 := 23
	rec := postJSON(t, h, "/dev/seed", map[string]any{
		"session_id": "sess-seed",
		"agent":      "new_registration",
		"step":       step23,
		"metadata":   map[string]string{"team": "tigers", "age_group": "u10"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}

	session, ok := sessionStore.Get("sess-seed")
	if !ok {
		t.Fatal("expected seeded session to exist")
	}
	if session.Agent != "new_registration" {
		t.Errorf("agent = %q", session.Agent)
	}
	if session.Step == nil || *session.Step != 23 {
		t.Errorf("step = %v, want 23", session.Step)
	}
	if session.Metadata["team"] != "tigers" {
		t.Errorf("metadata = %+v", session.Metadata)
	}
}
