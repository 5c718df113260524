package telemetry

import (
	"context"
	"testing"
)

func TestStartSpan_ReturnsUsableSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.op")
	defer span.End()
	if ctx == nil {
		t.Fatalf("expected non-nil context")
	}
	if span == nil {
		t.Fatalf("expected non-nil span")
	}
}

func TestRecordError_NilErrorIsNoop(t *testing.T) {
	_, span := StartSpan(context.Background(), "test.op")
	defer span.End()

	RecordError(span, nil)
}

func TestInit_InstallsProviderAndReturnsShutdown(t *testing.T) {
	shutdown, err := Init("discordctx-test")
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected non-nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}
