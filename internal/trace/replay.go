package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Reader parses a trace file written by Recorder.
type Reader struct {
	header Header
	lines  []string
}

// NewReader reads every line of r into memory (trace files are debugging
// artifacts, not a streaming workload, so this mirrors the teacher's
// TraceReader.ReadAll-first shape).
func NewReader(r io.Reader) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("trace: read header: %w", err)
		}
		return nil, fmt.Errorf("trace: empty trace file")
	}
	var header Header
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, fmt.Errorf("trace: parse header: %w", err)
	}

	rd := &Reader{header: header}
	for scanner.Scan() {
		rd.lines = append(rd.lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trace: read: %w", err)
	}
	return rd, nil
}

func (r *Reader) Header() Header { return r.header }

// Records parses every event line. A malformed line is reported with its
// 1-based position among event lines (not counting the header).
func (r *Reader) Records() ([]Record, error) {
	out := make([]Record, 0, len(r.lines))
	for i, line := range r.lines {
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("trace: parse record %d: %w", i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Validate checks the structural invariants a well-formed trace should
// hold: contiguous sequence numbers starting at 1, and a non-empty node ID
// on every record. Returns a list of human-readable problems; nil
// means the trace is structurally sound.
func (r *Reader) Validate() ([]string, error) {
	records, err := r.Records()
	if err != nil {
		return nil, err
	}
	var problems []string
	if len(records) == 0 {
		problems = append(problems, "trace has no events")
		return problems, nil
	}
	var lastSeq uint64
	for i, rec := range records {
		if rec.Seq != lastSeq+1 {
			problems = append(problems, fmt.Sprintf("record %d: seq %d is not contiguous after %d", i, rec.Seq, lastSeq))
		}
		lastSeq = rec.Seq
		if rec.Node.ID == "" {
			problems = append(problems, fmt.Sprintf("record %d: node has no id", i))
		}
	}
	return problems, nil
}

// Sink receives replayed records, in place of a live exectree.EventBus
// subscriber. Replay does not publish to any EventBus.
type Sink func(Record)

// ReplayOptions configures Replay.
type ReplayOptions struct {
	// Speed: 0 replays as fast as possible, 1 is real-time (using each
	// record's recorded Timestamp delta), >1 speeds up, <1 slows down.
	Speed float64
	// From/To restrict replay to a sequence range; zero To means no
	// upper bound.
	From, To uint64
}

// Stats summarizes a completed replay.
type Stats struct {
	EventsReplayed int
	FirstSeq       uint64
	LastSeq        uint64
	Duration       time.Duration
}

// Replay feeds records to sink in order, pausing between records according
// to opts.Speed, until ctx is canceled or every matching record has been
// sent.
func Replay(ctx context.Context, records []Record, sink Sink, opts ReplayOptions) (*Stats, error) {
	stats := &Stats{}
	start := time.Now()
	var prevTimestamp time.Time

	for _, rec := range records {
		if rec.Seq < opts.From {
			continue
		}
		if opts.To > 0 && rec.Seq > opts.To {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if opts.Speed > 0 && !prevTimestamp.IsZero() {
			delta := rec.Timestamp.Sub(prevTimestamp)
			if delta > 0 {
				wait := time.Duration(float64(delta) / opts.Speed)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return stats, ctx.Err()
				}
			}
		}
		prevTimestamp = rec.Timestamp

		sink(rec)
		stats.EventsReplayed++
		if stats.FirstSeq == 0 {
			stats.FirstSeq = rec.Seq
		}
		stats.LastSeq = rec.Seq
	}

	stats.Duration = time.Since(start)
	return stats, nil
}
