package trace

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/wrenlabs/gadgetrun/internal/exectree"
)

func TestRecorderAttachWritesHeaderAndEvents(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf, "run-1")

	bus := exectree.NewEventBus(nil)
	unsubscribe := rec.Attach(bus)
	defer unsubscribe()

	tree := exectree.New(bus)
	tree.AddLLMCall("", 0, "anthropic:claude", map[string]string{"k": "v"})
	rec.Close()

	reader, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if reader.Header().RunID != "run-1" {
		t.Fatalf("RunID = %q, want run-1", reader.Header().RunID)
	}
	records, err := reader.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 || records[0].Type != exectree.EventNodeAdded {
		t.Fatalf("records = %+v, want one node_added event", records)
	}
}

func TestReaderValidateDetectsGap(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"version":1,"run_id":"r","started_at":"2026-01-01T00:00:00Z"}` + "\n")
	buf.WriteString(`{"seq":1,"timestamp":"2026-01-01T00:00:01Z","type":"node_added","node":{"id":"a"}}` + "\n")
	buf.WriteString(`{"seq":3,"timestamp":"2026-01-01T00:00:02Z","type":"node_added","node":{"id":"b"}}` + "\n")

	reader, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	problems, err := reader.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(problems) != 1 {
		t.Fatalf("problems = %v, want exactly one gap problem", problems)
	}
}

func TestReplayRespectsSequenceRange(t *testing.T) {
	records := []Record{
		{Seq: 1, Timestamp: time.Unix(0, 0)},
		{Seq: 2, Timestamp: time.Unix(0, 0)},
		{Seq: 3, Timestamp: time.Unix(0, 0)},
	}
	var seen []uint64
	stats, err := Replay(context.Background(), records, func(r Record) { seen = append(seen, r.Seq) }, ReplayOptions{From: 2, To: 3})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(seen) != 2 || seen[0] != 2 || seen[1] != 3 {
		t.Fatalf("seen = %v, want [2 3]", seen)
	}
	if stats.EventsReplayed != 2 {
		t.Fatalf("EventsReplayed = %d, want 2", stats.EventsReplayed)
	}
}

func TestReplayRespectsContextCancellation(t *testing.T) {
	records := []Record{{Seq: 1, Timestamp: time.Unix(0, 0)}, {Seq: 2, Timestamp: time.Unix(0, 0)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Replay(ctx, records, func(Record) {}, ReplayOptions{})
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
}
