package layout

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/sudorandom/flowscope/pkg/graph"
	"github.com/sudorandom/flowscope/pkg/telemetry"
)

func testGraph(n int) *graph.Graph {
	records := make([]telemetry.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, telemetry.Record{
			SourceIP:      fmt.Sprintf("10.0.%d.%d", i%3, i),
			DestinationIP: fmt.Sprintf("172.16.0.%d", i%4),
		})
	}
	return graph.FromRecords(records)
}

func inputFor(g *graph.Graph) Input {
	return Input{Nodes: g.Nodes, Links: g.Links}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.ProgressInterval = time.Millisecond
	return cfg
}

// collect reads a run until its channel closes.
func collect(t *testing.T, r *Run, limit time.Duration) []Snapshot {
	t.Helper()
	var out []Snapshot
	deadline := time.After(limit)
	for {
		select {
		case s, ok := <-r.C():
			if !ok {
				return out
			}
			out = append(out, s)
		case <-deadline:
			t.Fatalf("run %d did not finish within %s", r.ID, limit)
			return out
		}
	}
}

func checkFinite(t *testing.T, nodes []NodePosition) {
	t.Helper()
	for _, n := range nodes {
		if math.IsNaN(n.X) || math.IsNaN(n.Y) || math.IsInf(n.X, 0) || math.IsInf(n.Y, 0) {
			t.Fatalf("node %s has non-finite position (%v, %v)", n.ID, n.X, n.Y)
		}
	}
}

func TestRunConverges(t *testing.T) {
	g := testGraph(30)
	e := NewEngine(testConfig(), nil)
	r := e.Run(context.Background(), inputFor(g))
	snaps := collect(t, r, 10*time.Second)

	if len(snaps) == 0 {
		t.Fatalf("no snapshots delivered")
	}
	last := snaps[len(snaps)-1]
	if !last.Done || last.Progress != 100 {
		t.Fatalf("last snapshot should be terminal: %+v", last)
	}
	if last.Reason != Converged && last.Reason != TimedOut {
		t.Errorf("unexpected reason %s", last.Reason)
	}
	if len(last.Nodes) != len(g.Nodes) {
		t.Errorf("terminal snapshot has %d nodes, want %d", len(last.Nodes), len(g.Nodes))
	}
	checkFinite(t, last.Nodes)

	prev := -1
	for i, s := range snaps {
		if s.Run != r.ID {
			t.Errorf("snapshot %d tagged with run %d, want %d", i, s.Run, r.ID)
		}
		if s.Progress < prev {
			t.Errorf("progress went backwards: %d after %d", s.Progress, prev)
		}
		prev = s.Progress
		if s.Done && i != len(snaps)-1 {
			t.Errorf("terminal snapshot delivered before the end")
		}
		if !s.Done && s.Progress > 99 {
			t.Errorf("progress snapshot reports %d", s.Progress)
		}
	}
	if term, ok := r.Terminal(); !ok || term.Reason != last.Reason {
		t.Errorf("Terminal() = %+v, %v", term, ok)
	}
}

func TestRunTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.SafetyTimeout = 30 * time.Millisecond
	e := NewEngine(cfg, nil)
	// Keep the layout warm so it never converges on its own.
	e.beforeTick = func(s *Simulation) { s.SetAlphaTarget(0.5) }

	start := time.Now()
	r := e.Run(context.Background(), inputFor(testGraph(10)))
	snaps := collect(t, r, 5*time.Second)
	if len(snaps) == 0 {
		t.Fatalf("no terminal snapshot after timeout")
	}
	last := snaps[len(snaps)-1]
	if !last.Done || last.Reason != TimedOut {
		t.Errorf("expected timeout terminal snapshot, got %+v", last)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
	checkFinite(t, last.Nodes)
}

func TestRunSupersedeDiscardsStale(t *testing.T) {
	cfg := testConfig()
	cfg.SafetyTimeout = time.Minute
	e := NewEngine(cfg, nil)
	// Only the larger graph (run A) is kept warm.
	e.beforeTick = func(s *Simulation) {
		if len(s.nodes) > 10 {
			s.SetAlphaTarget(0.5)
		}
	}

	a := e.Run(context.Background(), inputFor(testGraph(20)))
	// Let A produce something first.
	select {
	case <-a.C():
	case <-time.After(5 * time.Second):
		t.Fatalf("run A produced nothing")
	}

	b := e.Run(context.Background(), inputFor(testGraph(5)))
	if b.ID == a.ID {
		t.Fatalf("runs share an id")
	}

	if s, ok := <-a.C(); ok {
		t.Errorf("received snapshot from superseded run after B started: %+v", s)
	}
	select {
	case <-a.Done():
	default:
		t.Errorf("superseded run still running")
	}
	if _, ok := a.Terminal(); ok {
		t.Errorf("superseded run should not record a terminal snapshot")
	}

	for _, s := range collect(t, b, 10*time.Second) {
		if s.Run != b.ID {
			t.Errorf("run B delivered snapshot tagged %d", s.Run)
		}
	}
	if e.Current() != b {
		t.Errorf("engine should track run B as current")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	e.beforeTick = func(s *Simulation) {
		if s.Ticks() == 5 {
			panic("boom")
		}
	}
	g := testGraph(8)
	r := e.Run(context.Background(), inputFor(g))
	snaps := collect(t, r, 5*time.Second)
	last := snaps[len(snaps)-1]
	if !last.Done || last.Reason != Failed || last.Err == "" {
		t.Fatalf("expected failed terminal snapshot, got reason=%s err=%q", last.Reason, last.Err)
	}
	if len(last.Nodes) != len(g.Nodes) || last.Tick != 5 {
		t.Errorf("failed snapshot should carry last good positions: %d nodes at tick %d", len(last.Nodes), last.Tick)
	}
	checkFinite(t, last.Nodes)
}

func TestRunNonFinite(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	e.beforeTick = func(s *Simulation) {
		if s.Ticks() == 3 {
			s.nodes[0].vx = math.Inf(1)
		}
	}
	snaps := collect(t, e.Run(context.Background(), inputFor(testGraph(4))), 5*time.Second)
	last := snaps[len(snaps)-1]
	if last.Reason != Failed {
		t.Fatalf("expected failure on non-finite position, got %s", last.Reason)
	}
	checkFinite(t, last.Nodes)
}

func TestRunEmpty(t *testing.T) {
	e := NewEngine(testConfig(), nil)
	snaps := collect(t, e.Run(context.Background(), Input{}), time.Second)
	if len(snaps) != 1 || !snaps[0].Done || len(snaps[0].Nodes) != 0 {
		t.Errorf("expected a single empty terminal snapshot, got %+v", snaps)
	}
}

func TestRunSkipsDanglingLinks(t *testing.T) {
	g := testGraph(4)
	links := append([]graph.Link(nil), g.Links...)
	links = append(links, graph.Link{Source: "10.0.0.0", Target: "192.0.2.1"})
	sim := NewSimulation(testConfig(), Input{Nodes: g.Nodes, Links: links})
	if sim.SkippedLinks != 1 {
		t.Errorf("SkippedLinks = %d, want 1", sim.SkippedLinks)
	}
}

func TestPinnedInput(t *testing.T) {
	g := testGraph(12)
	pinned := g.Nodes[0].ID
	in := inputFor(g)
	in.Pinned = map[string]Point{pinned: {X: 123, Y: 456}}
	in.Alpha = DragAlpha

	cfg := testConfig()
	cfg.SafetyTimeout = time.Minute
	r := NewEngine(cfg, nil).Run(context.Background(), in)
	defer r.Cancel()

	// The pin holds the layout warm, so nothing finishes until it is released.
	for i := 0; i < 5; i++ {
		select {
		case s := <-r.C():
			if s.Done {
				t.Fatalf("run finished while a node was pinned")
			}
			for _, n := range s.Nodes {
				if n.ID == pinned && (n.X != 123 || n.Y != 456 || !n.Pinned) {
					t.Fatalf("pinned node moved to (%v, %v)", n.X, n.Y)
				}
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("no snapshot while pinned")
		}
	}
	if !r.Unpin(pinned) {
		t.Fatalf("Unpin rejected on a live run")
	}
	snaps := collect(t, r, 10*time.Second)
	last := snaps[len(snaps)-1]
	if !last.Done || last.Reason != Converged {
		t.Errorf("run should converge after the unpin, got %+v", last.Reason)
	}
}

func TestPinWhileRunning(t *testing.T) {
	cfg := testConfig()
	cfg.SafetyTimeout = time.Minute
	e := NewEngine(cfg, nil)
	e.beforeTick = func(s *Simulation) { s.SetAlphaTarget(0.5) }
	g := testGraph(6)
	r := e.Run(context.Background(), inputFor(g))
	defer r.Cancel()

	id := g.Nodes[1].ID
	if !r.Pin(id, 10, 20) {
		t.Fatalf("Pin rejected on a live run")
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-r.C():
			for _, n := range s.Nodes {
				if n.ID == id && n.Pinned && n.X == 10 && n.Y == 20 {
					return
				}
			}
		case <-deadline:
			t.Fatalf("pin never applied")
		}
	}
}

func TestPinAfterCancel(t *testing.T) {
	r := NewEngine(testConfig(), nil).Run(context.Background(), inputFor(testGraph(3)))
	r.Cancel()
	if r.Pin("10.0.0.0", 1, 1) {
		t.Errorf("Pin should fail on a cancelled run")
	}
}

func TestSimulationSeedsInitialPositions(t *testing.T) {
	g := testGraph(3)
	in := inputFor(g)
	in.Initial = map[string]Point{g.Nodes[0].ID: {X: 1, Y: 2}}
	sim := NewSimulation(testConfig(), in)
	p := sim.Positions()[0]
	if p.X != 1 || p.Y != 2 {
		t.Errorf("initial position ignored: %+v", p)
	}
	for _, n := range sim.Positions()[1:] {
		if n.X < 0 || n.X > 900 || n.Y < 0 || n.Y > 1200 {
			t.Errorf("random placement outside canvas: %+v", n)
		}
	}
}

func TestSimulationSeparatesNodes(t *testing.T) {
	g := testGraph(40)
	sim := NewSimulation(testConfig(), inputFor(g))
	for !sim.Converged() {
		if err := sim.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if sim.Ticks() > 1000 {
			t.Fatalf("simulation did not cool")
		}
	}
	pos := sim.Positions()
	var cx, cy float64
	for _, p := range pos {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pos))
	cy /= float64(len(pos))
	if math.Abs(cx-450) > 5 || math.Abs(cy-600) > 5 {
		t.Errorf("centroid (%v, %v) not at canvas centre", cx, cy)
	}
	overlaps := 0
	for i := range pos {
		for j := i + 1; j < len(pos); j++ {
			if math.Hypot(pos[i].X-pos[j].X, pos[i].Y-pos[j].Y) < 1 {
				overlaps++
			}
		}
	}
	if overlaps > 0 {
		t.Errorf("%d node pairs collapsed onto each other", overlaps)
	}
}

func TestNodeRadius(t *testing.T) {
	tests := []struct {
		degree, maxDegree int
		want              float64
	}{
		{0, 0, 8},
		{0, 10, 8},
		{5, 10, 14},
		{10, 10, 20},
		{20, 10, 20},
	}
	for _, tt := range tests {
		if got := NodeRadius(tt.degree, tt.maxDegree, 8, 20); got != tt.want {
			t.Errorf("NodeRadius(%d, %d) = %v, want %v", tt.degree, tt.maxDegree, got, tt.want)
		}
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{}.Normalize()
	if cfg != DefaultConfig() {
		t.Errorf("zero config should normalize to defaults: %+v", cfg)
	}
	if DefaultConfig().expectedTicks(1) != 300 {
		t.Errorf("cooling from 1 should take 300 ticks, got %d", DefaultConfig().expectedTicks(1))
	}
	if err := (Config{CollisionPadding: -1}).Validate(); err == nil {
		t.Errorf("negative padding should fail validation")
	}
}

func BenchmarkTick(b *testing.B) {
	g := testGraph(500)
	sim := NewSimulation(testConfig(), inputFor(g))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sim.SetAlphaTarget(0.5)
		if err := sim.Tick(); err != nil {
			b.Fatal(err)
		}
	}
}
