package engine

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Trace event types. Every state change of a run is recorded as one of
// these; the trace is append-only and totally ordered by Seq.
const (
	EventRunStarted         = "run_started"
	EventPhaseStarted       = "phase_started"
	EventPhaseCompleted     = "phase_completed"
	EventGateDecision       = "gate_decision"
	EventValidationRetry    = "validation_retry"
	EventDegradation        = "degradation_flagged"
	EventLoopAttempt        = "loop_attempt"
	EventLoopExhausted      = "loop_exhausted"
	EventEvidenceRecorded   = "evidence_recorded"
	EventSearchDegraded     = "search_degraded"
	EventCitationDropped    = "citation_dropped"
	EventRobustnessComputed = "robustness_computed"
	EventRunCompleted       = "run_completed"
)

type TraceEvent struct {
	EventID string         `json:"event_id"`
	RunID   string         `json:"run_id"`
	Seq     int64          `json:"seq"`
	TS      time.Time      `json:"ts"`
	Type    string         `json:"type"`
	Phase   Phase          `json:"phase,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func ValidateTraceEvent(event TraceEvent) error {
	if event.EventID == "" {
		return fmt.Errorf("event_id is empty")
	}
	if event.RunID == "" {
		return fmt.Errorf("run_id is empty")
	}
	if event.Seq <= 0 {
		return fmt.Errorf("seq must be positive, got %d", event.Seq)
	}
	if event.Type == "" {
		return fmt.Errorf("event type is empty")
	}
	return nil
}

// Trace is the append-only audit log of a single run. Appends are safe for
// concurrent use; sequence numbers are assigned inside the critical section,
// so the in-memory order, the Seq order and the sink order all agree.
type Trace struct {
	mu      sync.Mutex
	runID   string
	seq     int64
	events  []TraceEvent
	now     func() time.Time
	sink    func(TraceEvent) error
	sinkErr error
}

func NewTrace(runID string) *Trace {
	return &Trace{
		runID: runID,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. Intended for tests.
func (t *Trace) WithClock(now func() time.Time) *Trace {
	if now != nil {
		t.now = now
	}
	return t
}

// WithSink mirrors every appended event to sink, in Seq order. A sink
// failure never interrupts the run; the first error is retained and
// reported via SinkErr.
func (t *Trace) WithSink(sink func(TraceEvent) error) *Trace {
	t.sink = sink
	return t
}

func (t *Trace) Append(eventType string, phase Phase, payload map[string]any) TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	event := TraceEvent{
		EventID: newEventID(),
		RunID:   t.runID,
		Seq:     t.seq,
		TS:      t.now(),
		Type:    eventType,
		Phase:   phase,
		Payload: payload,
	}
	t.events = append(t.events, event)
	if t.sink != nil {
		if err := t.sink(event); err != nil && t.sinkErr == nil {
			t.sinkErr = fmt.Errorf("trace sink: %w", err)
		}
	}
	return event
}

func (t *Trace) Events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// SinkErr returns the first sink failure observed, if any.
func (t *Trace) SinkErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sinkErr
}

// JSONLSink returns a sink that appends each event as one JSON line to path.
// The file is created on first write; parent directories are created as
// needed.
func JSONLSink(path string) func(TraceEvent) error {
	return func(event TraceEvent) error {
		if err := ValidateTraceEvent(event); err != nil {
			return err
		}
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open trace log: %w", err)
		}
		defer f.Close()
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return nil
	}
}

// ReadTrace loads a JSONL trace log written by JSONLSink. Blank lines are
// skipped; malformed lines abort the read.
func ReadTrace(path string) ([]TraceEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	defer f.Close()

	events := []TraceEvent{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var event TraceEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse event line %d: %w", lineNo, err)
		}
		if err := ValidateTraceEvent(event); err != nil {
			return nil, fmt.Errorf("validate event line %d: %w", lineNo, err)
		}
		events = append(events, event)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace log: %w", err)
	}
	return events, nil
}

// ValidateMonotonicSeq rejects traces whose sequence numbers do not strictly
// increase, which would indicate interleaved or replayed writes.
func ValidateMonotonicSeq(events []TraceEvent) error {
	var last int64
	for _, event := range events {
		if event.Seq <= last {
			return fmt.Errorf("non-monotonic seq: %d <= %d", event.Seq, last)
		}
		last = event.Seq
	}
	return nil
}

func newEventID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("evt-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("evt-%d-%s", time.Now().UnixNano(), hex.EncodeToString(b[:]))
}
