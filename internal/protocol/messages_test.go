package protocol

import (
	"strings"
	"testing"
)

func TestParseClientAction_React(t *testing.T) {
	input := []byte(`{"type":"react","message_id":"msg_1","emoji":"👍"}`)

	msgType, msg, err := ParseClientAction(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeReact {
		t.Fatalf("expected type %q, got %q", TypeReact, msgType)
	}

	rm, ok := msg.(ReactMsg)
	if !ok {
		t.Fatalf("expected ReactMsg, got %T", msg)
	}
	if rm.MessageID != "msg_1" {
		t.Errorf("message_id = %q, want %q", rm.MessageID, "msg_1")
	}
	if rm.Emoji != "👍" {
		t.Errorf("emoji = %q, want 👍", rm.Emoji)
	}
}

func TestParseClientAction_EditSave(t *testing.T) {
	input := []byte(`{"type":"edit_save","message_id":"msg_2","text":"updated"}`)

	msgType, msg, err := ParseClientAction(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeEditSave {
		t.Fatalf("expected type %q, got %q", TypeEditSave, msgType)
	}
	em, ok := msg.(EditSaveMsg)
	if !ok {
		t.Fatalf("expected EditSaveMsg, got %T", msg)
	}
	if em.Text != "updated" {
		t.Errorf("text = %q, want %q", em.Text, "updated")
	}
}

func TestParseClientAction_AutoRefresh(t *testing.T) {
	input := []byte(`{"type":"auto_refresh","enabled":false}`)

	_, msg, err := ParseClientAction(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	am, ok := msg.(AutoRefreshMsg)
	if !ok {
		t.Fatalf("expected AutoRefreshMsg, got %T", msg)
	}
	if am.Enabled {
		t.Error("enabled should be false")
	}
}

func TestParseClientAction_UnknownType(t *testing.T) {
	_, _, err := ParseClientAction([]byte(`{"type":"bogus"}`))
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "unknown client action type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseClientAction_MissingType(t *testing.T) {
	_, _, err := ParseClientAction([]byte(`{"message_id":"msg_1"}`))
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestParseClientAction_InvalidJSON(t *testing.T) {
	_, _, err := ParseClientAction([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
