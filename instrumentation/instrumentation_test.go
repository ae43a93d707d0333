package instrumentation

import (
	"context"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if inst.Metrics() == nil {
		t.Fatal("Metrics() is nil")
	}
	if inst.Tracer("test") == nil {
		t.Error("Tracer() is nil")
	}
	if inst.Meter("test") == nil {
		t.Error("Meter() is nil")
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
	// second shutdown is a no-op
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("repeated Shutdown() error: %v", err)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()
	var m *Metrics

	// all recorders must tolerate a nil receiver
	m.RecordHTTPRequest(ctx, "GET", "/mcp_oauth/token", 200, 1.5)
	m.RecordAuthorizationRequested(ctx, "client-1")
	m.RecordLoginRedirect(ctx, "client-1")
	m.RecordContinuationResumed(ctx, "client-1")
	m.RecordCodeIssued(ctx, "client-1")
	m.RecordCodeExchange(ctx, "client-1", "S256")
	m.RecordCodeReuseDetected(ctx)
	m.RecordTokenIssued(ctx, false)
	m.RecordTokenRevoked(ctx, 2)
	m.RecordTokenValidated(ctx, true)
	m.RecordClientRegistration(ctx, "public")
	m.RecordPKCEValidationFailed(ctx, "plain")
	m.RecordRateLimitExceeded(ctx, "registration")
	m.RecordStorageOperation(ctx, "save_token", "ok", 0.2)
}

func TestMetrics_NoopRecording(t *testing.T) {
	inst, err := New(Config{ServiceName: "test-service", ServiceVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	ctx := context.Background()
	m := inst.Metrics()
	m.RecordHTTPRequest(ctx, "POST", "/mcp_oauth/register", 201, 4.2)
	m.RecordTokenIssued(ctx, true)
	m.RecordTokenRevoked(ctx, 0)
	m.RecordStorageOperation(ctx, "consume_code", "reuse", 1.1)
}
