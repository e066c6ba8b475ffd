package telemetry

import (
	"context"
	"testing"
)

func TestRecordingSinkCapturesEventsInOrder(t *testing.T) {
	var sink RecordingSink
	sink.Emit(context.Background(), SimFallback, "episode_id", "a")
	sink.Emit(context.Background(), SeriesAdjacencyForced, "series_id", "s1")

	if len(sink.Events) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(sink.Events))
	}
	if sink.Events[0].Kind != SimFallback || sink.Events[1].Kind != SeriesAdjacencyForced {
		t.Fatalf("expected events captured in emission order, got %+v", sink.Events)
	}
}

func TestRecordingSinkHasReportsPresence(t *testing.T) {
	var sink RecordingSink
	if sink.Has(SimFallback) {
		t.Fatal("expected Has to report false before any event is emitted")
	}
	sink.Emit(context.Background(), SimFallback)
	if !sink.Has(SimFallback) {
		t.Fatal("expected Has to report true once the event was emitted")
	}
	if sink.Has(SeriesAdjacencyForced) {
		t.Fatal("expected Has to report false for a kind never emitted")
	}
}

func TestNoopSinkDiscardsEvents(t *testing.T) {
	var sink NoopSink
	sink.Emit(context.Background(), SimFallback, "anything")
}

func TestNewSlogSinkFallsBackToDefaultLogger(t *testing.T) {
	sink := NewSlogSink(nil)
	if sink.Logger == nil {
		t.Fatal("expected NewSlogSink to fall back to a non-nil default logger")
	}
	// Emit should not panic against the default logger.
	sink.Emit(context.Background(), SimFallback, "k", "v")
}
