package security

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestAuditor_LogEvent(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewAuditor(slog.New(slog.NewJSONHandler(&buf, nil)))

	auditor.LogTokenIssued("user-123", "client-1", "Test Client", false)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("audit output not JSON: %v", err)
	}
	if record["audit"] != true {
		t.Error("audit flag missing")
	}
	if record["event_type"] != EventTokenIssued {
		t.Errorf("event_type = %v", record["event_type"])
	}
	if record["client_id"] != "client-1" {
		t.Errorf("client_id = %v", record["client_id"])
	}

	// the raw user ID must never reach the log
	if strings.Contains(buf.String(), "user-123") {
		t.Error("raw user ID in audit output")
	}
	if record["user_hash"] != HashIdentifier("user-123") {
		t.Errorf("user_hash = %v", record["user_hash"])
	}
}

func TestAuditor_Disabled(t *testing.T) {
	auditor := NewAuditor(nil)
	if auditor.Enabled() {
		t.Error("auditor with nil logger reports enabled")
	}
	// must not panic
	auditor.LogTokenIssued("u", "c", "n", true)
	auditor.LogCodeReuse("u", "c", 3)

	var nilAuditor *Auditor
	if nilAuditor.Enabled() {
		t.Error("nil auditor reports enabled")
	}
	nilAuditor.LogAuthFailure("c", "1.2.3.4", "test")
}

func TestHashIdentifier(t *testing.T) {
	a := HashIdentifier("user-123")
	b := HashIdentifier("user-123")
	c := HashIdentifier("user-124")

	if a != b {
		t.Error("hash not deterministic")
	}
	if a == c {
		t.Error("distinct identifiers collide")
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
	if a == "user-123" || strings.Contains(a, "user") {
		t.Error("identifier not hashed")
	}
	if HashIdentifier("") != "" {
		t.Error("empty identifier should hash to empty")
	}
}
