package main

import (
	"encoding/json"
	"testing"

	"github.com/sudorandom/flowscope/pkg/flowengine"
	"github.com/sudorandom/flowscope/pkg/graph"
	"github.com/sudorandom/flowscope/pkg/layout"
)

func message(t *testing.T, m flowengine.Message) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestStatsRecord(t *testing.T) {
	s := NewStats()
	s.Record(message(t, flowengine.Message{Type: "graph", Run: 2, Links: make([]graph.Link, 3)}), false)
	s.Record(message(t, flowengine.Message{Type: "snapshot", Run: 2, Snapshot: &layout.Snapshot{Run: 2, Tick: 10, Progress: 40, Nodes: make([]layout.NodePosition, 4)}}), false)
	s.Record(message(t, flowengine.Message{Type: "snapshot", Run: 1, Snapshot: &layout.Snapshot{Run: 1}}), false)
	s.Record(message(t, flowengine.Message{Type: "snapshot", Run: 2, Snapshot: &layout.Snapshot{Run: 2, Tick: 90, Progress: 100, Done: true, Reason: layout.TimedOut}}), false)
	s.Record([]byte("{"), false)

	if s.Messages != 4 || s.Malformed != 1 || s.Stale != 1 {
		t.Errorf("counts: messages %d, malformed %d, stale %d", s.Messages, s.Malformed, s.Stale)
	}
	r := s.Runs[2]
	if r == nil || r.Links != 3 || r.Nodes != 4 || r.Snapshots != 2 || !r.Done || r.Reason != layout.TimedOut {
		t.Fatalf("run stats = %+v", r)
	}
	if got := s.analyze(); len(got) != 2 {
		t.Errorf("expected timeout and stale conclusions, got %v", got)
	}
}

func TestWSURL(t *testing.T) {
	for in, want := range map[string]string{
		"http://localhost:8080":     "ws://localhost:8080/ws",
		"https://flows.example.com": "wss://flows.example.com/ws",
	} {
		got, err := wsURL(in)
		if err != nil || got != want {
			t.Errorf("wsURL(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}
