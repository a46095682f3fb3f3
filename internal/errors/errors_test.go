package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeAndCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeQuoteUnavailable, cause, "", WithMetadata("mint", "abc"))

	if CodeOf(err) != CodeQuoteUnavailable {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("cause not preserved in chain")
	}
	if err.Metadata()["mint"] != "abc" {
		t.Fatalf("metadata lost: %+v", err.Metadata())
	}
	if err.Message() != AttributesOf(CodeQuoteUnavailable).Message {
		t.Fatalf("empty message should fall back to registry default")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNothingToSell, ""))
	if !stdErrors.Is(err, New(CodeNothingToSell, "other message")) {
		t.Fatalf("errors with same code should match")
	}
	if stdErrors.Is(err, New(CodeBroadcastFailed, "")) {
		t.Fatalf("errors with different codes should not match")
	}
	if !IsCode(err, CodeNothingToSell) {
		t.Fatalf("IsCode should see the wrapped code")
	}
}

func TestUnregisteredCodeFallsBackToUnknown(t *testing.T) {
	attr := AttributesOf(Code("NOT_REGISTERED"))
	if attr.Message != AttributesOf(CodeUnknown).Message {
		t.Fatalf("expected UNKNOWN fallback, got %+v", attr)
	}
}

func TestSeverityOverride(t *testing.T) {
	err := New(CodeQuoteUnavailable, "", WithSeverity(SeverityCritical))
	if err.Severity() != SeverityCritical {
		t.Fatalf("expected overridden severity, got %s", err.Severity())
	}
	if SeverityOf(New(CodeStorageFailure, "")) != SeverityCritical {
		t.Fatalf("registry severity not applied")
	}
}

func TestPlainErrorHasNoCode(t *testing.T) {
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors should map to UNKNOWN")
	}
	if RetryableError(stdErrors.New("plain")) {
		t.Fatalf("plain errors are not retryable")
	}
}
