package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"space-arena/internal/arena"

	"github.com/rs/zerolog"
)

func readLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("Invalid JSON line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

// TestJournalWritesEventsAndActions tests the JSONL output
func TestJournalWritesEventsAndActions(t *testing.T) {
	var buf bytes.Buffer
	j := New(DefaultConfig(), zerolog.Nop())
	if err := j.Start(&buf); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	j.ObserveEvents([]arena.Event{
		{Type: arena.EventCollision, PrimaryID: "a", PrimaryKind: arena.KindDynamic, SecondaryID: "b"},
	})
	j.ObserveActions([]arena.Action{
		{TargetID: "a", Type: arena.ActionDie, Executor: arena.ExecutorSimulation, Priority: arena.PriorityHigh},
		{TargetID: "a", Type: arena.ActionMove, Executor: arena.ExecutorPhysics},
	})
	j.ObserveTick(arena.KindDynamic, time.Millisecond)
	j.Stop()

	lines := readLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines (move skipped), got %d", len(lines))
	}
	if lines[0]["record"] != "event" || lines[0]["type"] != "collision" || lines[0]["secondary"] != "b" {
		t.Errorf("Unexpected event line %v", lines[0])
	}
	if lines[1]["record"] != "action" || lines[1]["type"] != "die" || lines[1]["executor"] != "simulation" {
		t.Errorf("Unexpected action line %v", lines[1])
	}
	if lines[0]["seq"].(float64) >= lines[1]["seq"].(float64) {
		t.Error("Sequence numbers must increase")
	}

	st := j.Stats()
	if st.Total != 2 || st.Ticks != 1 || st.Running {
		t.Errorf("Unexpected stats %+v", st)
	}
}

// TestJournalPerBodyLimit tests one noisy body cannot flood the journal
func TestJournalPerBodyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerBody = 10 // burst of 2
	j := New(cfg, zerolog.Nop())
	if err := j.Start(nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer j.Stop()

	for i := 0; i < 50; i++ {
		j.ObserveEvents([]arena.Event{{Type: arena.EventMustFire, PrimaryID: "noisy"}})
	}
	j.ObserveEvents([]arena.Event{{Type: arena.EventMustFire, PrimaryID: "quiet"}})

	st := j.Stats()
	if st.Dropped < 40 {
		t.Errorf("Expected most noisy entries dropped, got %d", st.Dropped)
	}
	if st.Total < 2 || st.Total > 10 {
		t.Errorf("Expected a handful accepted, got %d", st.Total)
	}
}

// TestJournalBufferFull tests backpressure by dropping
func TestJournalBufferFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 4
	cfg.FlushInterval = time.Hour
	j := New(cfg, zerolog.Nop())
	if err := j.Start(nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer j.Stop()

	for i := 0; i < 10; i++ {
		j.ObserveEvents([]arena.Event{{Type: arena.EventLifeOver, PrimaryID: string(rune('a' + i))}})
	}
	st := j.Stats()
	if st.Total != 4 || st.Dropped != 6 || st.Pending != 4 {
		t.Errorf("Expected 4 kept and 6 dropped, got %+v", st)
	}
}

// TestJournalFileAndCleanup tests file output and limiter expiry
func TestJournalFileAndCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	cfg := DefaultConfig()
	cfg.Path = path
	j := New(cfg, zerolog.Nop())
	if err := j.Start(nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	j.ObserveEvents([]arena.Event{{Type: arena.EventReachedEastLimit, PrimaryID: "x"}})
	j.cleanupLimiters(time.Now().Add(time.Hour))
	if _, ok := j.bodyLimiters.Load("x"); ok {
		t.Error("Idle limiter should have been dropped")
	}
	j.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if lines := readLines(t, data); len(lines) != 1 || lines[0]["type"] != "reached_east_limit" {
		t.Errorf("Unexpected file content %q", data)
	}

	if j.emit(Entry{Primary: "late"}) {
		t.Error("Stopped journal must reject entries")
	}
}
