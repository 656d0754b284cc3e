package observability

import (
	"context"
	"testing"
)

func TestNewClickHouseAnalyticsSink_EmptyDSNReturnsNil(t *testing.T) {
	sink, err := NewClickHouseAnalyticsSink(context.Background(), "", "")
	if err != nil {
		t.Fatalf("expected no error for empty dsn, got %v", err)
	}
	if sink != nil {
		t.Fatalf("expected nil sink for empty dsn")
	}
}

func TestNoopAnalyticsSink_RecordIsSafe(t *testing.T) {
	sink := NewNoopAnalyticsSink()
	sink.Record(context.Background(), Execution{State: "completed", Iterations: 3})
}
