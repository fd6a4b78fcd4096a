package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestLimitExceededClassification(t *testing.T) {
	err := NewLimitExceeded("/cam1", 2, 2)
	if !IsLimitExceeded(err) {
		t.Fatalf("expected IsLimitExceeded true")
	}
	if !IsAdmissionRejected(err) {
		t.Fatalf("expected IsAdmissionRejected true")
	}
	if IsPublisherConflict(err) {
		t.Fatalf("limit error misclassified as publisher conflict")
	}
	if !strings.Contains(err.Error(), "/cam1") {
		t.Fatalf("message should name the path: %v", err)
	}
}

func TestPublisherConflictClassification(t *testing.T) {
	err := NewPublisherConflict("/cam2")
	if !IsPublisherConflict(err) || !IsAdmissionRejected(err) {
		t.Fatalf("expected publisher conflict classification")
	}
	if IsLimitExceeded(err) {
		t.Fatalf("conflict misclassified as limit exceeded")
	}
}

func TestConsistencyIsNotAdmission(t *testing.T) {
	err := NewConsistency("teardown", stdErrors.New("unknown path"))
	if !IsConsistencyViolation(err) {
		t.Fatalf("expected consistency classification")
	}
	if IsAdmissionRejected(err) {
		t.Fatalf("consistency violation must not classify as admission rejection")
	}
}

func TestWrappedClassification(t *testing.T) {
	inner := NewPublisherConflict("/cam3")
	wrapped := fmt.Errorf("announce rejected: %w", inner)
	if !IsPublisherConflict(wrapped) {
		t.Fatalf("classification should survive wrapping")
	}

	ce := NewConsistency("close.cascade", nil)
	if ce.Error() != "consistency violation: close.cascade" {
		t.Fatalf("unexpected message: %v", ce)
	}
}

func TestNilError(t *testing.T) {
	if IsAdmissionRejected(nil) || IsConsistencyViolation(nil) {
		t.Fatalf("nil must not classify")
	}
}
