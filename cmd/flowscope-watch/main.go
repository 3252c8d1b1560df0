package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/flowengine"
	"github.com/sudorandom/flowscope/pkg/layout"
)

var cli struct {
	URL     string        `arg:"" optional:"" help:"Server base URL." default:"http://localhost:8080"`
	Timeout time.Duration `help:"How long to run before exiting (0 for infinite)."`
	JSON    bool          `name:"json" help:"Dump raw messages instead of showing stats."`
	Debug   bool          `help:"Enable verbose logging for debugging."`
}

// RunStats is what one layout run delivered to this client.
type RunStats struct {
	Links     int
	Snapshots int
	Nodes     int
	Tick      int
	Progress  int
	Done      bool
	Reason    layout.Reason
	Started   time.Time
	Finished  time.Time
}

type Stats struct {
	mu        sync.Mutex
	Messages  int
	Malformed int
	Stale     int
	Runs      map[uint64]*RunStats
	Current   uint64
	StartTime time.Time
}

func NewStats() *Stats {
	return &Stats{Runs: make(map[uint64]*RunStats), StartTime: time.Now()}
}

func (s *Stats) Record(msg []byte, showJSON bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if showJSON {
		var pretty bytes.Buffer
		_ = json.Indent(&pretty, msg, "", "  ")
		fmt.Printf("%s\n\n", pretty.String())
	}

	var m flowengine.Message
	if err := json.Unmarshal(msg, &m); err != nil {
		s.Malformed++
		return
	}
	s.Messages++

	switch m.Type {
	case "graph":
		s.Current = m.Run
		s.Runs[m.Run] = &RunStats{Links: len(m.Links), Started: time.Now()}
	case "snapshot":
		if m.Snapshot == nil {
			s.Malformed++
			return
		}
		if m.Run < s.Current {
			s.Stale++
			return
		}
		r, ok := s.Runs[m.Run]
		if !ok {
			// Joined mid-run, after the graph message.
			r = &RunStats{Started: time.Now()}
			s.Runs[m.Run] = r
		}
		s.Current = m.Run
		r.Snapshots++
		r.Nodes = len(m.Snapshot.Nodes)
		r.Tick = m.Snapshot.Tick
		r.Progress = m.Snapshot.Progress
		if m.Snapshot.Done && !r.Done {
			r.Done, r.Reason, r.Finished = true, m.Snapshot.Reason, time.Now()
		}
	}
}

func (s *Stats) Report() {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	fmt.Printf("\033[H\033[2J") // Clear screen
	fmt.Printf("flowscope Layout Monitor (Running for %.1fs)\n", elapsed)
	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Messages:    %d (%.2f/s)\n", s.Messages, float64(s.Messages)/elapsed)
	fmt.Printf("Runs seen:   %d\n", len(s.Runs))
	fmt.Printf("Stale msgs:  %d\n", s.Stale)
	fmt.Printf("Malformed:   %d\n", s.Malformed)
	fmt.Printf("--------------------------------------------------\n")

	if r, ok := s.Runs[s.Current]; ok {
		fmt.Printf("CURRENT RUN %d:\n", s.Current)
		fmt.Printf("  Nodes:     %d\n", r.Nodes)
		fmt.Printf("  Links:     %d\n", r.Links)
		fmt.Printf("  Snapshots: %d\n", r.Snapshots)
		fmt.Printf("  Tick:      %d\n", r.Tick)
		if r.Done {
			fmt.Printf("  Finished:  %s after %s\n", r.Reason, r.Finished.Sub(r.Started).Round(time.Millisecond))
		} else {
			fmt.Printf("  Progress:  %d%%\n", r.Progress)
		}
		fmt.Printf("--------------------------------------------------\n")
	}

	fmt.Printf("LIKELY CONCLUSIONS:\n")
	conclusions := s.analyze()
	if len(conclusions) == 0 {
		fmt.Printf("  - Layouts look healthy\n")
	} else {
		for _, c := range conclusions {
			fmt.Printf("  - %s\n", c)
		}
	}
	fmt.Printf("--------------------------------------------------\n")

	// Slowest finished runs
	type runTime struct {
		ID   uint64
		Took time.Duration
	}
	var times []runTime
	for id, r := range s.Runs {
		if r.Done {
			times = append(times, runTime{id, r.Finished.Sub(r.Started)})
		}
	}
	sort.Slice(times, func(i, j int) bool {
		return times[i].Took > times[j].Took
	})
	maxRuns := min(5, len(times))
	if maxRuns > 0 {
		fmt.Printf("Slowest %d Runs:\n", maxRuns)
		for _, t := range times[:maxRuns] {
			fmt.Printf("  run %d: %s\n", t.ID, t.Took.Round(time.Millisecond))
		}
	}
}

func (s *Stats) analyze() []string {
	var results []string
	elapsed := time.Since(s.StartTime).Seconds()

	timedOut, failed, finished := 0, 0, 0
	for _, r := range s.Runs {
		if !r.Done {
			continue
		}
		finished++
		switch r.Reason {
		case layout.TimedOut:
			timedOut++
		case layout.Failed:
			failed++
		}
	}

	// 1. Safety timeout
	if timedOut > 0 {
		results = append(results, fmt.Sprintf("Layouts stopping early (%d of %d runs hit the safety timeout; graph too large or timeout too short)", timedOut, finished))
	}

	// 2. Worker failures
	if failed > 0 {
		results = append(results, fmt.Sprintf("Layout failures (%d runs failed; check server logs)", failed))
	}

	// 3. Runs replaced before finishing
	if unfinished := len(s.Runs) - finished; unfinished > 1 {
		results = append(results, fmt.Sprintf("Runs superseded before finishing (%d; windows are changing faster than layouts settle)", unfinished))
	}

	// 4. Stale traffic
	if s.Stale > 0 {
		results = append(results, "Stale snapshots received (an older run kept streaming after a newer one started)")
	}

	// 5. Re-layout churn
	if elapsed > 30 && float64(len(s.Runs))/elapsed > 0.5 {
		results = append(results, "Re-layout churn (new runs more often than every 2s)")
	}

	return results
}

func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("bad server URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("flowscope-watch"),
		kong.Description("Follow a flowscope server's layout stream and summarize it."),
		kong.UsageOnError(),
	)
	var zl *zap.Logger
	var err error
	if cli.Debug {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	kctx.FatalIfErrorf(err)
	log := zl.Sugar()
	defer log.Sync()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	if cli.Timeout > 0 {
		go func() {
			time.Sleep(cli.Timeout)
			log.Infof("Timeout of %v reached, exiting...", cli.Timeout)
			interrupt <- os.Interrupt
		}()
	}

	u, err := wsURL(cli.URL)
	kctx.FatalIfErrorf(err)
	log.Infof("Connecting to %s", u)

	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		log.Errorf("dial: %v", err)
		return
	}
	defer func() {
		_ = c.Close()
	}()

	stats := NewStats()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				return
			}
			stats.Record(message, cli.JSON)
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !cli.JSON {
				stats.Report()
			}
		case <-interrupt:
			log.Infof("Exiting...")
			if !cli.JSON {
				stats.Report()
			}
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
