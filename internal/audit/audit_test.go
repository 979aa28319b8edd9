package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func (s *blockingSink) Emit(ctx context.Context, event Event) {
	<-s.release
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func TestDispatcherStampsEvents(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{EventType: "token_rotated"})

	select {
	case ev := <-sink.Events():
		if ev.ID == "" || ev.Timestamp.IsZero() || ev.Severity != SeverityLow {
			t.Fatalf("event not stamped: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "csrf_validation_failed"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}

	close(sink.release)
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "after_close"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, ev := range sink.events {
		if ev.EventType == "after_close" {
			t.Fatal("event accepted after close")
		}
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher should report zero drops")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{ID: "01", EventType: "session_created", Severity: SeverityLow, Success: true})
	sink.Emit(context.Background(), Event{ID: "02", EventType: "session_invalidated", Severity: SeverityMedium})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != "session_invalidated" || ev.Severity != SeverityMedium {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestZerologSinkLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf))
	sink.Emit(context.Background(), Event{
		ID:        "01HZ",
		EventType: "refresh_reuse_detected",
		Severity:  SeverityHigh,
		UserID:    "u-1",
		FamilyID:  "fam_1",
		Reason:    "reuse_detected",
		Metadata:  map[string]string{"route": "refresh"},
	})

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, buf.String())
	}
	if out["level"] != "warn" || out["message"] != "security.refresh_reuse_detected" {
		t.Fatalf("unexpected log line %v", out)
	}
	if out["family_id"] != "fam_1" || out["user_id"] != "u-1" {
		t.Fatalf("missing fields in %v", out)
	}
	meta, ok := out["metadata"].(map[string]any)
	if !ok || meta["route"] != "refresh" {
		t.Fatalf("missing metadata in %v", out)
	}
}
